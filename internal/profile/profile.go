package profile

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Profile holds the onboarding answers that accompany every assistant
// request. Free-text fields stay free-text: the assistant consumes them
// verbatim.
type Profile struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	DisplayName string    `gorm:"type:varchar(64)" json:"display_name"`
	BirthYear   int       `json:"birth_year"`
	Sex         string    `gorm:"type:varchar(16)" json:"sex"`
	Conditions  string    `gorm:"type:text" json:"conditions"`
	Medications string    `gorm:"type:text" json:"medications"`
	Goals       string    `gorm:"type:text" json:"goals"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

func (Profile) TableName() string { return "user_profiles" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert writes the onboarding answers, replacing any previous ones for the
// same user.
func (r *Repo) Upsert(ctx context.Context, p *Profile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "birth_year", "sex", "conditions", "medications", "goals", "updated_at",
		}),
	}).Create(p).Error
}
