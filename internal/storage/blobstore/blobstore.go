// Пакет blobstore — контентно-адресуемое хранение blob на диске.
// Запись выполняется в два этапа: Stage (streaming-приём с подсчётом
// BLAKE3 на лету и контролем лимита размера) и Commit (атомарный
// rename под финальным именем). Между этапами вызывающий код
// выполняет проверку дедупликации по дайджесту.
package blobstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// ErrTooLarge — поток превысил лимит размера. Spill-файл удалён.
var ErrTooLarge = errors.New("размер потока превышает лимит")

// BlobStore — управление blob-файлами в директории загрузок.
type BlobStore struct {
	// dataDir — корневая директория хранения (PX_UPLOAD_DIR)
	dataDir string
}

// StagedBlob — принятый, но ещё не зафиксированный blob.
// Данные лежат в spill-файле; дайджест посчитан ровно по этим байтам.
type StagedBlob struct {
	// Digest — hex-кодированный BLAKE3-дайджест содержимого
	Digest string
	// Size — количество принятых байт
	Size int64

	tmpPath string
}

// New создаёт BlobStore. Создаёт директорию данных, если её нет.
func New(dataDir string) (*BlobStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &BlobStore{dataDir: dataDir}, nil
}

// Stage принимает поток в spill-файл, одновременно считая BLAKE3
// и общее число байт. Один проход, память ограничена буфером io.Copy.
// Если поток длиннее limit байт — приём прерывается, spill-файл
// удаляется и возвращается ErrTooLarge.
//
// Дайджест считается ровно по байтам, записанным в spill-файл,
// поэтому последующий Commit фиксирует именно захэшированное содержимое.
func (bs *BlobStore) Stage(r io.Reader, limit int64) (*StagedBlob, error) {
	tmpPath := filepath.Join(bs.dataDir, ".stage-"+uuid.New().String()+".tmp")

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания spill-файла: %w", err)
	}

	discard := func() {
		f.Close()
		os.Remove(tmpPath)
	}

	// Streaming запись с одновременным подсчётом BLAKE3.
	// Читаем limit+1 байт: лишний байт означает превышение лимита.
	hasher := blake3.New()
	tee := io.TeeReader(io.LimitReader(r, limit+1), hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		discard()
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if size > limit {
		discard()
		return nil, ErrTooLarge
	}

	// fsync для гарантии записи на диск до rename в Commit
	if err := f.Sync(); err != nil {
		discard()
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия spill-файла: %w", err)
	}

	return &StagedBlob{
		Digest:  hex.EncodeToString(hasher.Sum(nil)),
		Size:    size,
		tmpPath: tmpPath,
	}, nil
}

// Commit атомарно переименовывает spill-файл под финальное имя blobName.
// После Commit StagedBlob использовать нельзя.
func (bs *BlobStore) Commit(staged *StagedBlob, blobName string) error {
	finalPath := filepath.Join(bs.dataDir, blobName)

	if err := os.Rename(staged.tmpPath, finalPath); err != nil {
		os.Remove(staged.tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Discard удаляет spill-файл незафиксированного blob.
// Повторный вызов и вызов после Commit безопасны.
func (bs *BlobStore) Discard(staged *StagedBlob) {
	if staged == nil {
		return
	}
	_ = os.Remove(staged.tmpPath)
}

// Open открывает blob для чтения. Вызывающий код обязан закрыть файл.
func (bs *BlobStore) Open(blobName string) (*os.File, error) {
	f, err := os.Open(filepath.Join(bs.dataDir, blobName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob не найден: %s", blobName)
		}
		return nil, fmt.Errorf("ошибка открытия blob %s: %w", blobName, err)
	}
	return f, nil
}

// Exists проверяет существование blob на диске.
func (bs *BlobStore) Exists(blobName string) bool {
	_, err := os.Stat(filepath.Join(bs.dataDir, blobName))
	return err == nil
}

// Remove удаляет blob с диска. Отсутствие blob не считается ошибкой.
func (bs *BlobStore) Remove(blobName string) error {
	err := os.Remove(filepath.Join(bs.dataDir, blobName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления blob %s: %w", blobName, err)
	}
	return nil
}

// DataDir возвращает путь к директории данных.
func (bs *BlobStore) DataDir() string {
	return bs.dataDir
}
