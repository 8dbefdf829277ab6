package repository

import (
	"time"

	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/utils/id-generator/snowflake"

	"gorm.io/gorm"
	"gorm.io/plugin/soft_delete"
)

/* ========================================================================
 * Base Model - 基础模型
 * ========================================================================
 * 职责: 定义所有模型的公共字段和方法
 * 使用: 所有 GORM 模型都应嵌入 BaseModel；
 *       需要多层级数据隔离的模型再嵌入 IsolationModel
 * ======================================================================== */

// BaseModel 所有模型的基类
// 包含通用字段：ID、创建时间、更新时间、软删除标记
type BaseModel struct {
	ID         int64                 `json:"id,string" gorm:"primaryKey;comment:主键ID"`
	CreateTime time.Time             `json:"create_time" gorm:"column:create_time;autoCreateTime;comment:创建时间"`
	UpdateTime time.Time             `json:"update_time" gorm:"column:update_time;autoUpdateTime;comment:更新时间"`
	Deleted    soft_delete.DeletedAt `json:"-" gorm:"column:deleted;default:0;softDelete:flag;comment:软删除标记(1=已删除)"`
}

// BeforeCreate GORM 钩子：在创建记录前自动生成雪花 ID
// 注意: 在多实例部署环境中，必须配置环境变量 SNOWFLAKE_NODE_ID
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == 0 {
		m.ID = snowflake.Generate()
	}
	return nil
}

// IsolationModel 多层级隔离模型
// 记录的归属维度: 租户 > 组织 > 部门，owner_id 记录创建者
// shared/sharing_level 控制跨范围共享: shared=false 时仅完全同范围可见
type IsolationModel struct {
	TenantID       string `json:"tenant_id" gorm:"column:tenant_id;type:varchar(64);index;comment:租户ID"`
	OrganizationID string `json:"organization_id" gorm:"column:organization_id;type:varchar(64);index;comment:组织ID"`
	DepartmentID   string `json:"department_id" gorm:"column:department_id;type:varchar(64);index;comment:部门ID"`
	OwnerID        string `json:"owner_id" gorm:"column:owner_id;type:varchar(64);index;comment:创建者用户ID"`
	Shared         bool   `json:"shared" gorm:"column:shared;default:false;comment:是否共享"`
	SharingLevel   string `json:"sharing_level" gorm:"column:sharing_level;type:varchar(16);comment:共享层级"`
}

// Stamp 用隔离上下文填充归属字段
func (m *IsolationModel) Stamp(ic *isolation.Context) {
	if ic == nil {
		return
	}
	m.TenantID = ic.TenantID().String()
	m.OrganizationID = ic.OrganizationID().String()
	m.DepartmentID = ic.DepartmentID().String()
	m.OwnerID = ic.UserID().String()
}

// ShareAt 标记记录在指定层级共享
func (m *IsolationModel) ShareAt(level isolation.Level) {
	m.Shared = true
	m.SharingLevel = level.String()
}

// Unshare 取消共享
func (m *IsolationModel) Unshare() {
	m.Shared = false
	m.SharingLevel = ""
}

// IsolationContext 根据归属字段还原隔离上下文
func (m *IsolationModel) IsolationContext() (*isolation.Context, error) {
	return isolation.New(m.TenantID, m.OrganizationID, m.DepartmentID, m.OwnerID)
}
