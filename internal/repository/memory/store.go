// Package memory is an in-process repository.Store used by service and
// handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperr "lessonscope/internal/errors"
	"lessonscope/internal/model"
	"lessonscope/internal/repository"
)

type tables struct {
	users      map[string]model.User
	sessions   map[string]model.Session
	recordings map[string]model.Recording
	reports    map[string]model.Report
}

func (t tables) clone() tables {
	c := tables{
		users:      make(map[string]model.User, len(t.users)),
		sessions:   make(map[string]model.Session, len(t.sessions)),
		recordings: make(map[string]model.Recording, len(t.recordings)),
		reports:    make(map[string]model.Report, len(t.reports)),
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.sessions {
		c.sessions[k] = v
	}
	for k, v := range t.recordings {
		c.recordings[k] = v
	}
	for k, v := range t.reports {
		c.reports[k] = v
	}
	return c
}

// Store keeps every table in maps guarded by one mutex. Transactions are
// serialised and roll back by restoring a snapshot.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data tables
	seq  int64
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		data: tables{}.clone(),
		now:  time.Now,
	}
}

func (s *Store) Users() repository.UserRepository           { return users{s} }
func (s *Store) Sessions() repository.SessionRepository     { return sessions{s} }
func (s *Store) Recordings() repository.RecordingRepository { return recordings{s} }
func (s *Store) Reports() repository.ReportRepository       { return reports{s} }

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// stamp returns a strictly increasing timestamp so newest-first ordering is stable.
func (s *Store) stamp() time.Time {
	s.seq++
	return s.now().Add(time.Duration(s.seq) * time.Microsecond)
}

func duplicate(what string) error {
	return fmt.Errorf("%s: %w: %w", what, repository.ErrDuplicate, apperr.ErrPersistence)
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
}

func page[T any](rows []T, createdAt func(T) time.Time, filter repository.ListFilter) []T {
	filter = filter.Normalize()
	sort.SliceStable(rows, func(i, j int) bool { return createdAt(rows[i]).After(createdAt(rows[j])) })
	if filter.Offset >= len(rows) {
		return []T{}
	}
	end := min(filter.Offset+filter.Limit, len(rows))
	return append([]T{}, rows[filter.Offset:end]...)
}

type users struct{ s *Store }

func (r users) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_ = user.BeforeCreate(nil)
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	for _, u := range r.s.data.users {
		if u.OpenID == user.OpenID {
			return duplicate("create user")
		}
	}
	if _, ok := r.s.data.users[user.ID]; ok {
		return duplicate("create user")
	}
	user.CreatedAt = r.s.stamp()
	user.UpdatedAt = user.CreatedAt
	r.s.data.users[user.ID] = *user
	return nil
}

func (r users) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return &u, nil
}

func (r users) FindByOpenID(_ context.Context, openID string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.data.users {
		if u.OpenID == openID {
			return &u, nil
		}
	}
	return nil, notFound("user")
}

func (r users) Update(_ context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil, notFound("user")
	}
	if update.Nickname != nil {
		u.Nickname = *update.Nickname
	}
	if update.AvatarURL != nil {
		u.AvatarURL = update.AvatarURL
	}
	if update.Phone != nil {
		u.Phone = update.Phone
	}
	if update.Email != nil {
		u.Email = update.Email
	}
	if !update.Empty() {
		u.UpdatedAt = r.s.now()
	}
	r.s.data.users[id] = u
	return &u, nil
}

func (r users) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.data.users)), nil
}

func (r users) CountForUpdate(ctx context.Context) (int64, error) {
	return r.Count(ctx)
}

func (r users) Stats(_ context.Context, userID string) (*model.UserStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stats := &model.UserStats{}
	for _, rec := range r.s.data.recordings {
		if rec.UserID == userID {
			stats.RecordingCount++
			stats.TotalDuration += int64(rec.Duration)
		}
	}
	for _, rep := range r.s.data.reports {
		if rep.UserID == userID {
			stats.ReportCount++
		}
	}
	return stats, nil
}

type sessions struct{ s *Store }

func (r sessions) Create(_ context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_ = session.BeforeCreate(nil)
	for _, existing := range r.s.data.sessions {
		if existing.TokenHash == session.TokenHash {
			return duplicate("create session")
		}
	}
	session.CreatedAt = r.s.stamp()
	r.s.data.sessions[session.ID] = *session
	return nil
}

func (r sessions) FindValid(_ context.Context, userID, tokenHash string, now time.Time) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, sess := range r.s.data.sessions {
		if sess.UserID == userID && sess.TokenHash == tokenHash && sess.ExpiresAt.After(now) {
			return &sess, nil
		}
	}
	return nil, notFound("session")
}

func (r sessions) DeleteByTokenHash(_ context.Context, tokenHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, sess := range r.s.data.sessions {
		if sess.TokenHash == tokenHash {
			delete(r.s.data.sessions, id)
			return true, nil
		}
	}
	return false, nil
}

func (r sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, sess := range r.s.data.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(r.s.data.sessions, id)
			n++
		}
	}
	return n, nil
}

type recordings struct{ s *Store }

func (r recordings) Create(_ context.Context, recording *model.Recording) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_ = recording.BeforeCreate(nil)
	if _, ok := r.s.data.recordings[recording.ID]; ok {
		return duplicate("create recording")
	}
	recording.CreatedAt = r.s.stamp()
	recording.UpdatedAt = recording.CreatedAt
	r.s.data.recordings[recording.ID] = *recording
	return nil
}

func (r recordings) FindByID(_ context.Context, id string) (*model.Recording, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.data.recordings[id]
	if !ok {
		return nil, notFound("recording")
	}
	return &rec, nil
}

func (r recordings) FindByIDs(_ context.Context, ids []string) ([]model.Recording, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.Recording
	seen := map[string]bool{}
	for _, id := range ids {
		if rec, ok := r.s.data.recordings[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r recordings) List(_ context.Context, filter repository.ListFilter) ([]model.Recording, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := []model.Recording{}
	for _, rec := range r.s.data.recordings {
		if filter.UserID == "" || rec.UserID == filter.UserID {
			rows = append(rows, rec)
		}
	}
	return page(rows, func(rec model.Recording) time.Time { return rec.CreatedAt }, filter), nil
}

func (r recordings) Count(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, rec := range r.s.data.recordings {
		if userID == "" || rec.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r recordings) UpdateTitle(_ context.Context, id, title string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.data.recordings[id]
	if !ok {
		return nil
	}
	rec.Title = title
	rec.UpdatedAt = r.s.now()
	r.s.data.recordings[id] = rec
	return nil
}

func (r recordings) TransitionStatus(_ context.Context, id string, from, to model.RecordingStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.data.recordings[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	rec.UpdatedAt = r.s.now()
	r.s.data.recordings[id] = rec
	return true, nil
}

func (r recordings) FailProcessing(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, rec := range r.s.data.recordings {
		if rec.Status != model.RecordingStatusProcessing {
			continue
		}
		rec.Status = model.RecordingStatusFailed
		rec.UpdatedAt = r.s.now()
		r.s.data.recordings[id] = rec
		n++
	}
	return n, nil
}

func (r recordings) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.recordings[id]; !ok {
		return notFound("recording")
	}
	r.s.deleteRecordingLocked(id)
	return nil
}

func (r recordings) DeleteMany(_ context.Context, ids []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := r.s.data.recordings[id]; ok {
			r.s.deleteRecordingLocked(id)
			n++
		}
	}
	return n, nil
}

// deleteRecordingLocked removes a recording and cascades to its report.
func (s *Store) deleteRecordingLocked(id string) {
	delete(s.data.recordings, id)
	for rid, rep := range s.data.reports {
		if rep.RecordingID == id {
			delete(s.data.reports, rid)
		}
	}
}

type reports struct{ s *Store }

func (r reports) Create(_ context.Context, report *model.Report) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_ = report.BeforeCreate(nil)
	for _, existing := range r.s.data.reports {
		if existing.RecordingID == report.RecordingID {
			return duplicate("create report")
		}
	}
	report.CreatedAt = r.s.stamp()
	report.UpdatedAt = report.CreatedAt
	r.s.data.reports[report.ID] = *report
	return nil
}

func (r reports) FindByID(_ context.Context, id string) (*model.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rep, ok := r.s.data.reports[id]
	if !ok {
		return nil, notFound("report")
	}
	return &rep, nil
}

func (r reports) FindByRecordingID(_ context.Context, recordingID string) (*model.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rep := range r.s.data.reports {
		if rep.RecordingID == recordingID {
			return &rep, nil
		}
	}
	return nil, notFound("report")
}

func (r reports) List(_ context.Context, filter repository.ListFilter) ([]model.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := []model.Report{}
	for _, rep := range r.s.data.reports {
		if filter.UserID == "" || rep.UserID == filter.UserID {
			rows = append(rows, rep)
		}
	}
	return page(rows, func(rep model.Report) time.Time { return rep.CreatedAt }, filter), nil
}

func (r reports) Count(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, rep := range r.s.data.reports {
		if userID == "" || rep.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r reports) Complete(_ context.Context, id string, result model.ReportResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rep, ok := r.s.data.reports[id]
	if !ok || rep.Status != model.ReportStatusProcessing {
		return notFound("processing report")
	}
	transcript := result.Transcript
	rep.Transcript = &transcript
	rep.Segments = result.Segments
	rep.Analysis = result.Analysis
	rep.TeacherSpeechRate = decimal.NewNullDecimal(result.TeacherSpeechRate)
	rep.StudentParticipation = decimal.NewNullDecimal(result.StudentParticipation)
	rep.InteractionQuality = decimal.NewNullDecimal(result.InteractionQuality)
	rep.ContentStructure = decimal.NewNullDecimal(result.ContentStructure)
	rep.OverallScore = decimal.NewNullDecimal(result.OverallScore)
	rep.Suggestions = result.Suggestions
	rep.Status = model.ReportStatusCompleted
	rep.UpdatedAt = r.s.now()
	r.s.data.reports[id] = rep
	return nil
}

func (r reports) MarkFailed(_ context.Context, id, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rep, ok := r.s.data.reports[id]
	if !ok || rep.Status != model.ReportStatusProcessing {
		return nil
	}
	if runes := []rune(reason); len(runes) > 500 {
		reason = string(runes[:500])
	}
	rep.Status = model.ReportStatusFailed
	rep.ErrorMessage = &reason
	rep.UpdatedAt = r.s.now()
	r.s.data.reports[id] = rep
	return nil
}

func (r reports) FailProcessing(ctx context.Context, reason string) (int64, error) {
	r.s.mu.Lock()
	var ids []string
	for id, rep := range r.s.data.reports {
		if rep.Status == model.ReportStatusProcessing {
			ids = append(ids, id)
		}
	}
	r.s.mu.Unlock()

	for _, id := range ids {
		if err := r.MarkFailed(ctx, id, reason); err != nil {
			return 0, err
		}
	}
	return int64(len(ids)), nil
}

func (r reports) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.reports[id]; !ok {
		return notFound("report")
	}
	delete(r.s.data.reports, id)
	return nil
}
