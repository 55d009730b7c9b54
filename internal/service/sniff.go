// Пакет service — бизнес-логика pixstore.
// sniff.go — классификация содержимого по magic-байтам.
package service

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bigkaa/pixstore/internal/domain/model"
)

// SniffLen — размер префикса потока, по которому определяется тип
// содержимого. Полный payload классификатору не нужен.
const SniffLen = 128

// allowedKinds — политика допуска по классу содержимого.
// Сейчас принимаются только изображения; расширение политики —
// добавление класса в это множество.
var allowedKinds = map[model.MediaKind]bool{
	model.KindImage: true,
}

// UnsupportedTypeError — содержимое не прошло политику допуска.
// Detected — имя типа, определённого по magic-байтам (для диагностики).
type UnsupportedTypeError struct {
	Detected string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("тип содержимого %q не принимается, только изображения", e.Detected)
}

// Classification — результат определения типа содержимого.
type Classification struct {
	// Kind — обобщённый класс (image/video/other)
	Kind model.MediaKind
	// MIME — полный MIME-тип, определённый по magic-байтам
	MIME string
	// Ext — расширение файла без точки (png, jpg, ...)
	Ext string
}

// Classify определяет тип содержимого по первым байтам потока
// (не более SniffLen) и проверяет его против политики допуска.
// Выполняется до хэширования и записи на диск, чтобы не тратить
// I/O на содержимое, которое будет отклонено.
func Classify(prefix []byte) (*Classification, error) {
	mtype := mimetype.Detect(prefix)

	kind := kindOf(mtype.String())
	if !allowedKinds[kind] {
		return nil, &UnsupportedTypeError{Detected: mtype.String()}
	}

	ext := strings.TrimPrefix(mtype.Extension(), ".")
	if ext == "" {
		return nil, &UnsupportedTypeError{Detected: mtype.String()}
	}

	return &Classification{
		Kind: kind,
		MIME: mtype.String(),
		Ext:  ext,
	}, nil
}

// kindOf отображает MIME-тип в обобщённый класс содержимого.
func kindOf(mime string) model.MediaKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return model.KindImage
	case strings.HasPrefix(mime, "video/"):
		return model.KindVideo
	default:
		return model.KindOther
	}
}
