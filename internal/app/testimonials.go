package app

import (
	"fmt"
	"strings"

	"sensetech/internal/util"
	"sensetech/pkg/domain"
)

// CreateTestimonial stores a user's testimonial. The rating defaults to
// five stars and is clamped to 1..5; testimonials publish immediately.
func (a *App) CreateTestimonial(user domain.User, comment string, rating int) (domain.Testimonial, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return domain.Testimonial{}, ErrInvalidInput
	}
	if rating == 0 {
		rating = 5
	}
	if rating < 1 || rating > 5 {
		return domain.Testimonial{}, ErrInvalidInput
	}
	t := domain.Testimonial{
		ID:        util.NewID(),
		UserID:    user.ID,
		Username:  user.Username,
		Comment:   comment,
		Rating:    rating,
		Approved:  true,
		CreatedAt: a.now(),
	}
	if err := a.store.SaveTestimonial(t); err != nil {
		return domain.Testimonial{}, fmt.Errorf("save testimonial: %w", err)
	}
	return t, nil
}

// PublicTestimonials returns the latest approved testimonials.
func (a *App) PublicTestimonials() ([]domain.Testimonial, error) {
	return a.store.ListApprovedTestimonials(10)
}
