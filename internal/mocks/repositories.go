package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/repository"
)

var (
	_ repository.UserRepository      = (*MockUserRepository)(nil)
	_ repository.ReportRepository    = (*MockReportRepository)(nil)
	_ repository.FeedbackRepository  = (*MockFeedbackRepository)(nil)
	_ repository.PesticideRepository = (*MockPesticideRepository)(nil)
	_ repository.PestRepository      = (*MockPestRepository)(nil)
)

// NewRepositories wires a fresh set of in-memory repositories
func NewRepositories() (*repository.Repositories, *MockSet) {
	set := &MockSet{
		User:      NewMockUserRepository(),
		Report:    NewMockReportRepository(),
		Feedback:  NewMockFeedbackRepository(),
		Pesticide: NewMockPesticideRepository(),
		Pest:      NewMockPestRepository(),
	}
	return &repository.Repositories{
		User:      set.User,
		Report:    set.Report,
		Feedback:  set.Feedback,
		Pesticide: set.Pesticide,
		Pest:      set.Pest,
	}, set
}

// MockSet exposes the concrete mocks behind a Repositories value
type MockSet struct {
	User      *MockUserRepository
	Report    *MockReportRepository
	Feedback  *MockFeedbackRepository
	Pesticide *MockPesticideRepository
	Pest      *MockPestRepository
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mu          sync.Mutex
	Users       map[string]*models.User
	EmailToUser map[string]*models.User
	InsertError error
	CountError  error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users:       make(map[string]*models.User),
		EmailToUser: make(map[string]*models.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertError != nil {
		return m.InsertError
	}
	user.Email = strings.ToLower(user.Email)
	if _, exists := m.EmailToUser[user.Email]; exists {
		return repository.ErrDuplicate
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt
	m.Users[user.ID] = user
	m.EmailToUser[user.Email] = user
	return nil
}

// copyUser returns a detached row, as a database read would
func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.Users[id]), nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.EmailToUser[strings.ToLower(email)]), nil
}

func (m *MockUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.EmailToUser[strings.ToLower(email)]
	return exists, nil
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*models.User, 0, len(m.Users))
	for _, u := range m.Users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return page(users, limit, offset), nil
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.Users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	// Copy only the columns the SQL UPDATE writes
	user.UpdatedAt = time.Now()
	stored.PasswordHash = user.PasswordHash
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.Phone = user.Phone
	stored.Role = user.Role
	stored.Active = user.Active
	stored.UpdatedAt = user.UpdatedAt
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.Users[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(m.Users, id)
	delete(m.EmailToUser, user.Email)
	return nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountError != nil {
		return 0, m.CountError
	}
	return len(m.Users), nil
}

// MockReportRepository is a mock implementation of ReportRepository
type MockReportRepository struct {
	mu          sync.Mutex
	Reports     []*models.Report
	InsertError error
	StreamError error
	CreateCalls int
}

func NewMockReportRepository() *MockReportRepository {
	return &MockReportRepository{}
}

func (m *MockReportRepository) Create(ctx context.Context, report *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.InsertError != nil {
		return m.InsertError
	}
	if report.IdempotencyKey != "" {
		for _, r := range m.Reports {
			if r.IdempotencyKey == report.IdempotencyKey {
				return repository.ErrDuplicate
			}
		}
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	m.Reports = append(m.Reports, report)
	return nil
}

func (m *MockReportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *MockReportRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Reports {
		if r.IdempotencyKey == key {
			return r, nil
		}
	}
	return nil, nil
}

// sorted returns reports most recent first; insertion order breaks ties
func (m *MockReportRepository) sorted() []*models.Report {
	out := make([]*models.Report, len(m.Reports))
	for i, r := range m.Reports {
		out[len(out)-1-i] = r
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MockReportRepository) List(ctx context.Context, limit, offset int) ([]*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.sorted(), limit, offset), nil
}

func (m *MockReportRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Reports), nil
}

func (m *MockReportRepository) StreamAll(ctx context.Context, callback func(*models.Report) error) error {
	m.mu.Lock()
	reports, streamErr := m.sorted(), m.StreamError
	m.mu.Unlock()
	if streamErr != nil {
		return streamErr
	}
	for _, r := range reports {
		if err := callback(r); err != nil {
			return err
		}
	}
	return nil
}

// MockFeedbackRepository is a mock implementation of FeedbackRepository
type MockFeedbackRepository struct {
	mu       sync.Mutex
	Feedback map[string]*models.Feedback
}

func NewMockFeedbackRepository() *MockFeedbackRepository {
	return &MockFeedbackRepository{Feedback: make(map[string]*models.Feedback)}
}

func (m *MockFeedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	fb.UpdatedAt = fb.CreatedAt
	m.Feedback[fb.ID] = fb
	return nil
}

func (m *MockFeedbackRepository) GetByID(ctx context.Context, id string) (*models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Feedback[id], nil
}

func (m *MockFeedbackRepository) List(ctx context.Context, limit, offset int) ([]*models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]*models.Feedback, 0, len(m.Feedback))
	for _, fb := range m.Feedback {
		items = append(items, fb)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return page(items, limit, offset), nil
}

func (m *MockFeedbackRepository) Update(ctx context.Context, fb *models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Feedback[fb.ID]; !ok {
		return repository.ErrNotFound
	}
	fb.UpdatedAt = time.Now()
	m.Feedback[fb.ID] = fb
	return nil
}

func (m *MockFeedbackRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Feedback[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.Feedback, id)
	return nil
}

func (m *MockFeedbackRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Feedback), nil
}

// MockPesticideRepository is a mock implementation of PesticideRepository
type MockPesticideRepository struct {
	mu               sync.Mutex
	Pesticides       map[string]*models.Pesticide
	ListCalls        int
	BatchInsertCalls int
}

func NewMockPesticideRepository() *MockPesticideRepository {
	return &MockPesticideRepository{Pesticides: make(map[string]*models.Pesticide)}
}

func (m *MockPesticideRepository) nameTaken(name, exceptID string) bool {
	for id, p := range m.Pesticides {
		if id != exceptID && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (m *MockPesticideRepository) Create(ctx context.Context, p *models.Pesticide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(p.Name, "") {
		return repository.ErrDuplicate
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.Pesticides[p.ID] = p
	return nil
}

func (m *MockPesticideRepository) BatchInsert(ctx context.Context, pesticides []*models.Pesticide) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchInsertCalls++
	// All or nothing, like a COPY inside one transaction
	seen := make(map[string]bool, len(pesticides))
	for _, p := range pesticides {
		key := strings.ToLower(p.Name)
		if seen[key] || m.nameTaken(p.Name, "") {
			return 0, repository.ErrDuplicate
		}
		seen[key] = true
	}
	for _, p := range pesticides {
		m.Pesticides[p.ID] = p
	}
	return len(pesticides), nil
}

func (m *MockPesticideRepository) GetByID(ctx context.Context, id string) (*models.Pesticide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pesticides[id], nil
}

func (m *MockPesticideRepository) NameExists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nameTaken(name, ""), nil
}

func (m *MockPesticideRepository) List(ctx context.Context) ([]*models.Pesticide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	items := make([]*models.Pesticide, 0, len(m.Pesticides))
	for _, p := range m.Pesticides {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (m *MockPesticideRepository) Update(ctx context.Context, p *models.Pesticide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Pesticides[p.ID]; !ok {
		return repository.ErrNotFound
	}
	if m.nameTaken(p.Name, p.ID) {
		return repository.ErrDuplicate
	}
	p.UpdatedAt = time.Now()
	m.Pesticides[p.ID] = p
	return nil
}

func (m *MockPesticideRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Pesticides[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.Pesticides, id)
	return nil
}

// MockPestRepository is a mock implementation of PestRepository
type MockPestRepository struct {
	mu               sync.Mutex
	Pests            map[string]*models.Pest
	ListCalls        int
	BatchInsertCalls int
}

func NewMockPestRepository() *MockPestRepository {
	return &MockPestRepository{Pests: make(map[string]*models.Pest)}
}

func (m *MockPestRepository) nameTaken(name, exceptID string) bool {
	for id, p := range m.Pests {
		if id != exceptID && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (m *MockPestRepository) Create(ctx context.Context, p *models.Pest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(p.Name, "") {
		return repository.ErrDuplicate
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.Pests[p.ID] = p
	return nil
}

func (m *MockPestRepository) BatchInsert(ctx context.Context, pests []*models.Pest) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchInsertCalls++
	// All or nothing, like a COPY inside one transaction
	seen := make(map[string]bool, len(pests))
	for _, p := range pests {
		key := strings.ToLower(p.Name)
		if seen[key] || m.nameTaken(p.Name, "") {
			return 0, repository.ErrDuplicate
		}
		seen[key] = true
	}
	for _, p := range pests {
		m.Pests[p.ID] = p
	}
	return len(pests), nil
}

func (m *MockPestRepository) GetByID(ctx context.Context, id string) (*models.Pest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pests[id], nil
}

func (m *MockPestRepository) NameExists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nameTaken(name, ""), nil
}

func (m *MockPestRepository) List(ctx context.Context) ([]*models.Pest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	items := make([]*models.Pest, 0, len(m.Pests))
	for _, p := range m.Pests {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (m *MockPestRepository) Update(ctx context.Context, p *models.Pest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Pests[p.ID]; !ok {
		return repository.ErrNotFound
	}
	if m.nameTaken(p.Name, p.ID) {
		return repository.ErrDuplicate
	}
	p.UpdatedAt = time.Now()
	m.Pests[p.ID] = p
	return nil
}

func (m *MockPestRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Pests[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.Pests, id)
	return nil
}
