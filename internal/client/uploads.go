package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// ImageBucket is the bucket listing images live in. Public URLs contain
// "/car-images/<path>".
const ImageBucket = "car-images"

const (
	noticeLoginToUpload = "Please log in to upload images"
	noticeUploadFailed  = "Failed to upload image"
)

// File is one image picked for upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploads stores listing images under the signed-in user's namespace.
type Uploads struct {
	gw      ObjectGateway
	session *Store
	notice  Notifier
	now     func() time.Time

	mu        sync.Mutex
	uploading bool
	done      int
	total     int
}

func NewUploads(gw ObjectGateway, session *Store, notice Notifier) *Uploads {
	if notice == nil {
		notice = LogNotifier{}
	}
	return &Uploads{gw: gw, session: session, notice: notice, now: time.Now}
}

// ObjectPath names an upload "<user_id>/<unix_millis>-<xid>.<ext>".
func ObjectPath(userID uuid.UUID, f File, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s.%s", userID, now.UnixMilli(), xid.New().String(), extension(f))
}

func extension(f File) string {
	if ext := strings.TrimPrefix(filepath.Ext(f.Name), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(f.ContentType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

// Upload validates f and stores it, returning its public URL. Validation
// happens before any remote call. On failure no URL is returned.
func (u *Uploads) Upload(ctx context.Context, f File) (string, error) {
	userID, ok := u.session.UserID()
	if !ok {
		u.notice.Error(noticeLoginToUpload)
		return "", domain.ErrUnauthenticated
	}
	if err := domain.ValidateImage(f.ContentType, f.Size, domain.MaxImageBytes); err != nil {
		u.notice.Error(domain.ErrorText(err))
		return "", err
	}

	u.mu.Lock()
	u.uploading = true
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.uploading = false
		u.mu.Unlock()
	}()

	url, err := u.gw.Upload(ctx, ObjectPath(userID, f, u.now()), f.ContentType, f.Size, f.Body)
	if err != nil {
		log.Printf("ERROR [client.Uploads] upload %s: %v", f.Name, err)
		u.notice.Error(noticeUploadFailed)
		return "", err
	}
	return url, nil
}

// UploadAll uploads files one after another and returns the URLs of those
// that succeeded, in order. progress, when set, is called with
// (completed, requested) before each file and once at the end.
func (u *Uploads) UploadAll(ctx context.Context, files []File, progress func(done, total int)) []string {
	total := len(files)
	report := func(done int) {
		u.mu.Lock()
		u.done, u.total = done, total
		u.mu.Unlock()
		if progress != nil {
			progress(done, total)
		}
	}

	urls := make([]string, 0, total)
	for i, f := range files {
		report(i)
		if url, err := u.Upload(ctx, f); err == nil {
			urls = append(urls, url)
		}
	}
	report(total)
	return urls
}

// Progress returns the fraction of the last UploadAll batch completed.
func (u *Uploads) Progress() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.total == 0 {
		return 0
	}
	return float64(u.done) / float64(u.total)
}

func (u *Uploads) IsUploading() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploading
}

// PathFromURL returns the object path after "/car-images/" in a public URL.
func PathFromURL(publicURL string) (string, bool) {
	_, rest, found := strings.Cut(publicURL, "/"+ImageBucket+"/")
	if !found {
		return "", false
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest, rest != ""
}

// Delete removes the object behind publicURL. An unrecognised URL or a
// remote failure is logged and reported as false. Either way the caller
// should drop the URL from its list.
func (u *Uploads) Delete(ctx context.Context, publicURL string) bool {
	p, ok := PathFromURL(publicURL)
	if !ok {
		log.Printf("WARN [client.Uploads] no storage path in %q", publicURL)
		return false
	}
	if err := u.gw.Delete(ctx, p); err != nil {
		log.Printf("ERROR [client.Uploads] delete %s: %v", p, err)
		return false
	}
	return true
}

// ImageSet is the ordered image list of a listing being edited. The
// first image is the cover.
type ImageSet struct {
	urls []string
}

func NewImageSet(urls ...string) *ImageSet {
	return &ImageSet{urls: append([]string(nil), urls...)}
}

// Add appends urls up to domain.MaxCarImages and reports how many were taken.
func (s *ImageSet) Add(urls ...string) int {
	added := 0
	for _, url := range urls {
		if url == "" || len(s.urls) >= domain.MaxCarImages {
			continue
		}
		s.urls = append(s.urls, url)
		added++
	}
	return added
}

// Remove deletes the stored object and drops url from the set even when
// the storage delete fails.
func (s *ImageSet) Remove(ctx context.Context, uploads *Uploads, url string) {
	uploads.Delete(ctx, url)
	out := s.urls[:0]
	for _, u := range s.urls {
		if u != url {
			out = append(out, u)
		}
	}
	s.urls = out
}

func (s *ImageSet) Cover() string {
	if len(s.urls) == 0 {
		return ""
	}
	return s.urls[0]
}

func (s *ImageSet) URLs() []string {
	return append([]string(nil), s.urls...)
}

func (s *ImageSet) Len() int { return len(s.urls) }
