package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

type BusinessRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Business, error)
}

type BusinessRepository struct {
	DB *sqlx.DB
}

func (r *BusinessRepository) GetByID(ctx context.Context, id int64) (*model.Business, error) {
	var b model.Business
	err := r.DB.GetContext(ctx, &b,
		`SELECT id, name, from_email, sms_from, review_url FROM businesses WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("business", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &b, nil
}

var _ BusinessRepositoryInterface = (*BusinessRepository)(nil)
