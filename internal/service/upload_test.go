package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apierrors "github.com/bigkaa/pixstore/internal/api/errors"
	"github.com/bigkaa/pixstore/internal/domain/model"
	"github.com/bigkaa/pixstore/internal/repository"
	"github.com/bigkaa/pixstore/internal/storage/blobstore"
)

// fakeFileRepo — in-memory реализация FileRepository с уникальностью
// по file_hash, как у UNIQUE constraint'а в БД.
type fakeFileRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.FileRecord
	byHash  map[string]string
	// createErr подменяет результат Create (имитация сбоя БД)
	createErr error
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{
		byID:   make(map[string]*model.FileRecord),
		byHash: make(map[string]string),
	}
}

func (f *fakeFileRepo) Create(ctx context.Context, rec *model.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byHash[rec.FileHash]; ok {
		return repository.ErrConflict
	}
	f.byID[rec.ID] = rec
	f.byHash[rec.FileHash] = rec.ID
	return nil
}

func (f *fakeFileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (f *fakeFileRepo) GetIDByHash(ctx context.Context, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[hash]
	if !ok {
		return "", repository.ErrNotFound
	}
	return id, nil
}

// newUploadFixture создаёт сервис загрузки с временным хранилищем.
func newUploadFixture(t *testing.T, maxSize int64) (*UploadService, *fakeFileRepo, *blobstore.BlobStore) {
	t.Helper()
	store, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	repo := newFakeFileRepo()
	svc := NewUploadService(store, repo, maxSize, testLogger())
	return svc, repo, store
}

// pngPayload возвращает валидное PNG-содержимое указанной длины.
func pngPayload(n int) []byte {
	buf := pngPrefix()
	if n <= len(buf) {
		return buf[:n]
	}
	return append(buf, bytes.Repeat([]byte{0x42}, n-len(buf))...)
}

// countDataFiles возвращает количество файлов в директории данных.
func countDataFiles(t *testing.T, store *blobstore.BlobStore) int {
	t.Helper()
	entries, err := os.ReadDir(store.DataDir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return len(entries)
}

func TestUpload_Success(t *testing.T) {
	svc, repo, store := newUploadFixture(t, 1<<20)
	payload := pngPayload(512)

	res, uerr := svc.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(payload),
		Uploader: "alice",
	})
	if uerr != nil {
		t.Fatalf("Upload() вернул ошибку: %v", uerr)
	}

	if res.Ext != "png" {
		t.Errorf("Ext = %q, ожидается png", res.Ext)
	}
	rec := res.Record
	if rec.ID == "" {
		t.Error("Record.ID пустой")
	}
	// Идентификатор — UUID без дефисов
	if len(rec.ID) != 32 {
		t.Errorf("len(ID) = %d, ожидается 32", len(rec.ID))
	}
	if rec.FileName != rec.ID+".png" {
		t.Errorf("FileName = %q, ожидается %s.png", rec.FileName, rec.ID)
	}
	if rec.FileType != model.KindImage {
		t.Errorf("FileType = %v, ожидается KindImage", rec.FileType)
	}
	if rec.FileSize != int64(len(payload)) {
		t.Errorf("FileSize = %d, ожидается %d", rec.FileSize, len(payload))
	}
	if rec.Uploader != "alice" {
		t.Errorf("Uploader = %q, ожидается alice", rec.Uploader)
	}

	// Запись зарегистрирована, blob на диске
	if _, err := repo.GetByID(context.Background(), rec.ID); err != nil {
		t.Errorf("запись не найдена после загрузки: %v", err)
	}
	if !store.Exists(rec.FileName) {
		t.Error("blob не существует после загрузки")
	}
	// Дайджест посчитан по полному содержимому
	if rec.FileHash == "" {
		t.Error("FileHash пустой")
	}
}

func TestUpload_SmallFile(t *testing.T) {
	// Файл короче префикса классификации тоже принимается
	svc, _, _ := newUploadFixture(t, 1<<20)
	payload := pngPayload(10)

	res, uerr := svc.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(payload),
		Uploader: "alice",
	})
	if uerr != nil {
		t.Fatalf("Upload() вернул ошибку: %v", uerr)
	}
	if res.Record.FileSize != 10 {
		t.Errorf("FileSize = %d, ожидается 10", res.Record.FileSize)
	}
}

func TestUpload_Duplicate(t *testing.T) {
	svc, _, store := newUploadFixture(t, 1<<20)
	payload := pngPayload(256)

	first, uerr := svc.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(payload),
		Uploader: "alice",
	})
	if uerr != nil {
		t.Fatalf("первая загрузка вернула ошибку: %v", uerr)
	}

	// Повторная загрузка того же содержимого (другим пользователем)
	_, uerr = svc.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(payload),
		Uploader: "bob",
	})
	if uerr == nil {
		t.Fatal("повторная загрузка должна быть отклонена")
	}
	if uerr.StatusCode != 400 || uerr.Code != apierrors.CodeAlreadyExists {
		t.Errorf("ошибка = (%d, %s), ожидается (400, %s)",
			uerr.StatusCode, uerr.Code, apierrors.CodeAlreadyExists)
	}
	if uerr.ExistingID != first.Record.ID {
		t.Errorf("ExistingID = %q, ожидается %q", uerr.ExistingID, first.Record.ID)
	}

	// На диске остался только первый blob
	if got := countDataFiles(t, store); got != 1 {
		t.Errorf("файлов на диске %d, ожидается 1", got)
	}
}

func TestUpload_UnsupportedType(t *testing.T) {
	svc, repo, store := newUploadFixture(t, 1<<20)

	// MP3-сигнатура — не изображение
	payload := append([]byte("ID3"), bytes.Repeat([]byte{0}, 500)...)

	_, uerr := svc.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(payload),
		Uploader: "alice",
	})
	if uerr == nil {
		t.Fatal("не-изображение должно быть отклонено")
	}
	if uerr.StatusCode != 400 || uerr.Code != apierrors.CodeUnsupportedMediaType {
		t.Errorf("ошибка = (%d, %s), ожидается (400, %s)",
			uerr.StatusCode, uerr.Code, apierrors.CodeUnsupportedMediaType)
	}

	// Отказ до записи: ни файлов на диске, ни записей
	if got := countDataFiles(t, store); got != 0 {
		t.Errorf("файлов на диске %d, ожидается 0", got)
	}
	if len(repo.byID) != 0 {
		t.Errorf("записей %d, ожидается 0", len(repo.byID))
	}
}

func TestUpload_TooLarge(t *testing.T) {
	svc, repo, store := newUploadFixture(t, 256)

	_, uerr := svc.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(pngPayload(257)),
		Uploader: "alice",
	})
	if uerr == nil {
		t.Fatal("превышение лимита должно быть отклонено")
	}
	if uerr.StatusCode != 400 || uerr.Code != apierrors.CodeFileTooLarge {
		t.Errorf("ошибка = (%d, %s), ожидается (400, %s)",
			uerr.StatusCode, uerr.Code, apierrors.CodeFileTooLarge)
	}

	if got := countDataFiles(t, store); got != 0 {
		t.Errorf("файлов на диске %d, ожидается 0", got)
	}
	if len(repo.byID) != 0 {
		t.Errorf("записей %d, ожидается 0", len(repo.byID))
	}
}

func TestUpload_ExactLimit(t *testing.T) {
	svc, _, _ := newUploadFixture(t, 256)

	// Файл ровно в лимит проходит
	_, uerr := svc.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(pngPayload(256)),
		Uploader: "alice",
	})
	if uerr != nil {
		t.Fatalf("Upload() вернул ошибку: %v", uerr)
	}
}

func TestUpload_InsertConflict(t *testing.T) {
	// Гонка двух конкурентных загрузок: проверка дедупликации прошла,
	// но вставка упёрлась в UNIQUE constraint. Проигравший получает
	// ALREADY_EXISTS с идентификатором победителя.
	_, repo, store := newUploadFixture(t, 1<<20)
	payload := pngPayload(128)

	// "Победитель" уже зарегистрирован, но fakeFileRepo настроен так,
	// что первый GetIDByHash его ещё не видит.
	winner := &model.FileRecord{
		ID:         "winner00000000000000000000000000",
		FileName:   "winner00000000000000000000000000.png",
		FileHash:   "",
		FileType:   model.KindImage,
		FileSize:   int64(len(payload)),
		Uploader:   "bob",
		UploadDate: time.Now().UTC(),
	}

	// Определяем дайджест содержимого через blobstore
	probe, err := store.Stage(bytes.NewReader(payload), 1<<20)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	store.Discard(probe)
	winner.FileHash = probe.Digest

	conflictOnce := &conflictingRepo{inner: repo, winner: winner}

	svcRace := NewUploadService(store, conflictOnce, 1<<20, testLogger())
	_, uerr := svcRace.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(payload),
		Uploader: "alice",
	})
	if uerr == nil {
		t.Fatal("проигравший гонку должен получить отказ")
	}
	if uerr.Code != apierrors.CodeAlreadyExists {
		t.Errorf("Code = %s, ожидается %s", uerr.Code, apierrors.CodeAlreadyExists)
	}
	if uerr.ExistingID != winner.ID {
		t.Errorf("ExistingID = %q, ожидается %q", uerr.ExistingID, winner.ID)
	}

	// Blob проигравшего удалён
	entries, _ := os.ReadDir(store.DataDir())
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".png" {
			t.Errorf("blob проигравшего остался на диске: %s", e.Name())
		}
	}
}

// conflictingRepo имитирует гонку: первый GetIDByHash не видит победителя,
// Create возвращает ErrConflict, после чего победитель становится видимым.
type conflictingRepo struct {
	inner    *fakeFileRepo
	winner   *model.FileRecord
	conflict bool
}

func (c *conflictingRepo) Create(ctx context.Context, rec *model.FileRecord) error {
	c.conflict = true
	return repository.ErrConflict
}

func (c *conflictingRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	return c.inner.GetByID(ctx, id)
}

func (c *conflictingRepo) GetIDByHash(ctx context.Context, hash string) (string, error) {
	if c.conflict && hash == c.winner.FileHash {
		return c.winner.ID, nil
	}
	return c.inner.GetIDByHash(ctx, hash)
}

func TestUpload_InsertFailure(t *testing.T) {
	// Сбой вставки после записи blob — внутренняя ошибка, не успех
	svc, repo, _ := newUploadFixture(t, 1<<20)
	repo.createErr = errors.New("connection reset")

	_, uerr := svc.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(pngPayload(64)),
		Uploader: "alice",
	})
	if uerr == nil {
		t.Fatal("сбой вставки должен вернуть ошибку")
	}
	if uerr.StatusCode != 500 || uerr.Code != apierrors.CodeInternalError {
		t.Errorf("ошибка = (%d, %s), ожидается (500, %s)",
			uerr.StatusCode, uerr.Code, apierrors.CodeInternalError)
	}
}

func TestUpload_SameContentSameDigest(t *testing.T) {
	// Дедупликация не зависит от uploader'а и момента загрузки:
	// одинаковые байты — один дайджест
	svc, repo, _ := newUploadFixture(t, 1<<20)
	payload := pngPayload(300)

	res, uerr := svc.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(payload),
		Uploader: "alice",
	})
	if uerr != nil {
		t.Fatalf("Upload() вернул ошибку: %v", uerr)
	}

	id, err := repo.GetIDByHash(context.Background(), res.Record.FileHash)
	if err != nil {
		t.Fatalf("GetIDByHash: %v", err)
	}
	if id != res.Record.ID {
		t.Errorf("GetIDByHash = %q, ожидается %q", id, res.Record.ID)
	}
}
