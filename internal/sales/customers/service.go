package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type Service struct {
	repo     Repository
	validate *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// Create registers a customer. Email and phone must not belong to another customer.
func (s *Service) Create(ctx context.Context, input CreateCustomerInput) (Customer, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = trimmed(input.Email)
	input.Phone = trimmed(input.Phone)
	if err := s.validate.Struct(input); err != nil {
		return Customer{}, fmt.Errorf("%w: %s", shared.ErrValidation, describe(err))
	}

	customer := Customer{
		ID:    uuid.New(),
		Name:  input.Name,
		Phone: input.Phone,
		Email: input.Email,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		_, err := repo.FindByContact(ctx, input.Email, input.Phone)
		if err == nil {
			return fmt.Errorf("customer already exists: %w", shared.ErrConflict)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("check existing customer: %w", err)
		}
		return repo.Create(ctx, &customer)
	})
	if err != nil {
		return Customer{}, err
	}
	return customer, nil
}

// Update changes a customer's contact details.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateCustomerInput) (Customer, error) {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		input.Name = &name
	}
	if err := s.validate.Struct(UpdateCustomerInput{Name: input.Name, Phone: trimmed(input.Phone), Email: trimmed(input.Email)}); err != nil {
		return Customer{}, fmt.Errorf("%w: %s", shared.ErrValidation, describe(err))
	}

	var customer Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		var email, phone *string
		if input.Name != nil {
			current.Name = *input.Name
		}
		if input.Email != nil {
			current.Email = trimmed(input.Email)
			email = current.Email
		}
		if input.Phone != nil {
			current.Phone = trimmed(input.Phone)
			phone = current.Phone
		}
		if email != nil || phone != nil {
			other, err := repo.FindByContact(ctx, email, phone)
			switch {
			case err == nil && other.ID != id:
				return fmt.Errorf("contact already used by another customer: %w", shared.ErrConflict)
			case err != nil && !errors.Is(err, shared.ErrNotFound):
				return fmt.Errorf("check existing customer: %w", err)
			}
		}
		if err := repo.Save(ctx, &current); err != nil {
			return err
		}
		customer = current
		return nil
	})
	if err != nil {
		return Customer{}, err
	}
	return customer, nil
}

// Get returns the customer with purchase stats.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	var detail Detail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.repo.FindByID(gctx, id)
		detail.Customer = c
		return err
	})
	g.Go(func() error {
		st, err := s.repo.Stats(gctx, id)
		detail.Stats = st
		return err
	})
	if err := g.Wait(); err != nil {
		return Detail{}, err
	}
	return detail, nil
}

// List returns a page of customers with stats.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Detail, shared.Pagination, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	details, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list customers: %w", err)
	}
	return details, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// PaymentStatus reports settlement state per customer.
func (s *Service) PaymentStatus(ctx context.Context, filter PaymentFilter) ([]PaymentSummary, error) {
	switch filter {
	case PaymentFilterAll, PaymentFilterPaid, PaymentFilterPending:
	default:
		return nil, fmt.Errorf("%w: filter must be paid or pending", shared.ErrValidation)
	}
	return s.repo.PaymentSummaries(ctx, filter)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("%s failed on %s", strings.ToLower(verrs[0].Field()), verrs[0].Tag())
	}
	return err.Error()
}
