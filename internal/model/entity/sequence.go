package entity

import "time"

// NumberSequence 编号序列（定制件号段等），NextValue通过行锁原子递增
type NumberSequence struct {
	Series    string    `json:"series" gorm:"primaryKey;size:32"`
	Prefix    string    `json:"prefix" gorm:"size:16;not null"`
	NextValue int64     `json:"next_value" gorm:"not null"`
	Padding   int       `json:"padding" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NumberSequence) TableName() string {
	return "number_sequences"
}
