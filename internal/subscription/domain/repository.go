package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	List(ctx context.Context, db *gorm.DB, filter ListRequest) ([]Subscription, error)
	FindClientByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Client, error)
	FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindSummaries(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]Summary, error)
}
