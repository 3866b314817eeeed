package entity

import (
	"database/sql/driver"
	"encoding/json"

	"gorm.io/gorm"
)

// JSONB 通用JSONB字段
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// AutoMigrate 自动迁移所有表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// 目录
		&Category{},
		&Assembly{},
		&Part{},
		&AssemblyComponent{},

		// 配置
		&Configuration{},
		&ConfigurationRule{},

		// BOM
		&BOMHeader{},
		&BOMLineItem{},

		// 订单
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&ProductionTask{},
		&QCChecklistItem{},

		// 编号序列
		&NumberSequence{},

		// 审计
		&AuditEvent{},
	)
}
