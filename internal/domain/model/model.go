// Пакет model — доменные модели pixstore: API-ключи и записи файлов.
package model

import "time"

// MediaKind — обобщённый класс содержимого файла.
// Хранится в колонке file_type (smallint).
type MediaKind int16

const (
	// KindImage — изображение (png, jpeg, gif, webp и т.д.)
	KindImage MediaKind = 0
	// KindVideo — видео
	KindVideo MediaKind = 1
	// KindOther — всё остальное
	KindOther MediaKind = 2
)

// String возвращает текстовое представление класса содержимого.
func (k MediaKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "other"
	}
}

// ApiKey — выданный API-ключ. Записи создаются администратором
// вне сервиса; pixstore только читает их при аутентификации.
type ApiKey struct {
	// ID — первичный ключ (serial)
	ID int32
	// KeyOwner — метка владельца ключа
	KeyOwner string
	// Key — секретное значение ключа (значение заголовка X-API-Key)
	Key string
	// ExpiresAt — момент истечения ключа
	ExpiresAt time.Time
}

// Valid проверяет действительность ключа на момент now.
func (k *ApiKey) Valid(now time.Time) bool {
	return now.Before(k.ExpiresAt)
}

// FileRecord — метаданные загруженного файла.
// Одна запись соответствует ровно одному blob на диске
// (имя blob = FileName в директории загрузок).
type FileRecord struct {
	// ID — непрозрачный идентификатор (UUID v4 без дефисов)
	ID string
	// FileName — имя файла на диске: {id}.{ext}
	FileName string
	// FileHash — hex-кодированный BLAKE3-дайджест содержимого (уникален)
	FileHash string
	// FileType — класс содержимого (image/video/other)
	FileType MediaKind
	// FileSize — размер blob в байтах
	FileSize int64
	// Uploader — метка владельца ключа, загрузившего файл
	Uploader string
	// UploadDate — момент загрузки (UTC)
	UploadDate time.Time
}
