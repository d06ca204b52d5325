package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/store"
	"biztrack/backend/internal/xid"
)

// Store keeps every record in process memory. Sales are appended in insert
// order and never mutated.
type Store struct {
	mu               sync.RWMutex
	businessesByID   map[string]domain.Business
	usersByID        map[string]domain.User
	userIDByEmail    map[string]string
	customersByID    map[string]domain.Customer
	sales            []domain.Sale
	salesByBusinessN map[string]int
}

func New() *Store {
	return &Store{
		businessesByID:   make(map[string]domain.Business),
		usersByID:        make(map[string]domain.User),
		userIDByEmail:    make(map[string]string),
		customersByID:    make(map[string]domain.Customer),
		sales:            make([]domain.Sale, 0, 256),
		salesByBusinessN: make(map[string]int),
	}
}

func (s *Store) RegisterBusiness(_ context.Context, business domain.Business, owner domain.User) (*domain.Business, *domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	business.Name = strings.TrimSpace(business.Name)
	if business.Name == "" {
		return nil, nil, store.ErrInvalidInput
	}
	if business.ID == "" {
		business.ID = xid.New()
	}
	if business.CreatedAt.IsZero() {
		business.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.businessesByID[business.ID]; exists {
		return nil, nil, store.ErrConflict
	}

	owner.BusinessID = business.ID
	if owner.Role == "" {
		owner.Role = domain.RoleOwner
	}
	createdOwner, err := s.insertUserLocked(owner)
	if err != nil {
		return nil, nil, err
	}

	s.businessesByID[business.ID] = business
	created := business
	return &created, createdOwner, nil
}

func (s *Store) GetBusiness(_ context.Context, id string) (*domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	business, ok := s.businessesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &business, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.businessesByID[user.BusinessID]; !ok {
		return nil, store.ErrInvalidInput
	}
	return s.insertUserLocked(user)
}

func (s *Store) insertUserLocked(user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || strings.TrimSpace(user.PasswordHash) == "" || user.BusinessID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.userIDByEmail[user.Email]; exists {
		return nil, store.ErrConflict
	}
	if user.ID == "" {
		user.ID = xid.New()
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.usersByID[user.ID] = user
	s.userIDByEmail[user.Email] = user.ID
	created := user
	return &created, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context, businessID string, role string) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, 8)
	for _, user := range s.usersByID {
		if user.BusinessID != businessID {
			continue
		}
		if role != "" && user.Role != role {
			continue
		}
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return strings.Compare(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" || customer.BusinessID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.businessesByID[customer.BusinessID]; !ok {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, businessID string, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok || customer.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, businessID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, 16)
	for _, customer := range s.customersByID {
		if customer.BusinessID == businessID {
			customers = append(customers, customer)
		}
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return customers, nil
}

// CreateSale assigns ID and CreatedAt when they are unset. Callers that
// import historical rows may supply CreatedAt themselves.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.BusinessID == "" || sale.CreatedBy == "" || sale.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.businessesByID[sale.BusinessID]; !ok {
		return nil, store.ErrInvalidInput
	}
	if sale.CustomerID != "" {
		customer, ok := s.customersByID[sale.CustomerID]
		if !ok || customer.BusinessID != sale.BusinessID {
			return nil, store.ErrInvalidInput
		}
	}
	if sale.ID == "" {
		sale.ID = xid.New()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	s.sales = append(s.sales, sale)
	s.salesByBusinessN[sale.BusinessID]++
	created := sale
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, businessID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	sales := make([]domain.Sale, 0, min(limit, s.salesByBusinessN[businessID]))
	for _, sale := range s.sales {
		if sale.BusinessID == businessID {
			sales = append(sales, sale)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(sales, compareSaleRecency)
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

// ScanSales copies the matching rows under the read lock and invokes fn
// after releasing it, so callbacks may block without stalling writers.
func (s *Store) ScanSales(ctx context.Context, businessID string, from time.Time, to time.Time, fn func(domain.SaleRecord) error) error {
	s.mu.RLock()
	records := make([]domain.SaleRecord, 0, s.salesByBusinessN[businessID])
	for _, sale := range s.sales {
		if sale.BusinessID != businessID {
			continue
		}
		if (!from.IsZero() && sale.CreatedAt.Before(from)) || !sale.CreatedAt.Before(to) {
			continue
		}
		rec := domain.SaleRecord{Sale: sale}
		if sale.CustomerID != "" {
			if customer, ok := s.customersByID[sale.CustomerID]; ok && customer.BusinessID == businessID {
				rec.CustomerName = customer.Name
			}
		}
		records = append(records, rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(records, func(a, b domain.SaleRecord) int {
		return compareSaleRecency(a.Sale, b.Sale)
	})

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// compareSaleRecency orders newest first, then by id descending.
func compareSaleRecency(a domain.Sale, b domain.Sale) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(b.ID, a.ID)
}
