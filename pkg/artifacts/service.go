package artifacts

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/database"
)

// DefaultMaxUploadBytes caps a single build upload.
const DefaultMaxUploadBytes = 256 << 20

// UploadInput describes a build upload.
type UploadInput struct {
	OrganizationID int64
	UploadedBy     int64
	Name           string
	FileName       string
	Data           []byte
}

// Service uploads and removes builds.
type Service struct {
	store   *Store
	storage Storage
	audit   audit.Emitter
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewService creates a build service. emitter may be nil.
func NewService(db database.DBTX, storage Storage, emitter audit.Emitter, log logrus.FieldLogger) *Service {
	if emitter == nil {
		emitter = audit.Nop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:   NewStore(db),
		storage: storage,
		audit:   emitter,
		log:     log.WithField("component", "builds"),
		now:     time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ObjectKey returns where an upload of fileName for orgID is stored.
func ObjectKey(orgID int64, id, fileName string) string {
	return fmt.Sprintf("orgs/%d/builds/%s/%s", orgID, id, fileName)
}

// sanitizeFileName keeps only the base name and drops characters that are
// awkward in object keys.
func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// Upload stores the file and records it. The object is removed again when
// the record cannot be written.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Build, error) {
	fileName := sanitizeFileName(in.FileName)
	if fileName == "" {
		return nil, apperr.BadRequest("file name is required")
	}
	if len(in.Data) == 0 {
		return nil, apperr.BadRequest("file is empty")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = fileName
	}

	key := ObjectKey(in.OrganizationID, uuid.NewString(), fileName)
	url, err := s.storage.Store(ctx, in.Data, key)
	if err != nil {
		return nil, err
	}

	build := &Build{
		OrganizationID: in.OrganizationID,
		Name:           name,
		Path:           key,
		URL:            url,
		SizeBytes:      int64(len(in.Data)),
		UploadedBy:     &in.UploadedBy,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.Create(ctx, build); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.log.WithError(delErr).WithField("path", key).Warn("Failed to remove orphaned build object")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"build_id":        build.ID,
		"organization_id": build.OrganizationID,
		"size_bytes":      build.SizeBytes,
	}).Info("Build uploaded")
	s.emit(ctx, audit.EventBuildUploaded, in.UploadedBy, build)
	return build, nil
}

// List returns the builds of orgID.
func (s *Service) List(ctx context.Context, orgID int64) ([]*Build, error) {
	return s.store.List(ctx, orgID)
}

// Get returns a build of orgID.
func (s *Service) Get(ctx context.Context, orgID, id int64) (*Build, error) {
	return s.store.Get(ctx, orgID, id)
}

// Delete removes the object and then the record.
func (s *Service) Delete(ctx context.Context, orgID, actorID, id int64) error {
	build, err := s.store.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, build.Path); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.log.WithField("build_id", id).Info("Build deleted")
	s.emit(ctx, audit.EventBuildDeleted, actorID, build)
	return nil
}

func (s *Service) emit(ctx context.Context, eventType audit.EventType, actorID int64, b *Build) {
	s.audit.Emit(ctx, audit.Event{
		Type:           eventType,
		Timestamp:      s.now().UTC(),
		ActorID:        audit.Int64(actorID),
		OrganizationID: audit.Int64(b.OrganizationID),
		ResourceType:   "build",
		ResourceID:     strconv.FormatInt(b.ID, 10),
		Metadata:       map[string]interface{}{"path": b.Path, "size_bytes": b.SizeBytes},
	})
}
