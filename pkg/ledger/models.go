package ledger

import (
	"time"

	"gorm.io/datatypes"
)

// 安装来源
const (
	SourceRemote  = "remote"  // pkg install <name>
	SourceLocal   = "local"   // pkg install ./foo.tar
	SourceUpgrade = "upgrade" // pkg upgrade
)

// InstallRecord 一次成功安装的记录
type InstallRecord struct {
	ID string `gorm:"primaryKey;type:char(36)"`

	Package   string `gorm:"index;type:varchar(255);not null"`
	Version   string `gorm:"type:varchar(64)"`
	Signature string `gorm:"type:varchar(128)"`
	Target    string `gorm:"type:varchar(128)"`
	Root      string `gorm:"type:text"`
	Source    string `gorm:"type:varchar(16)"`

	// Files: 写入的相对路径列表 ["bin/foo", "etc/foo.conf"]
	Files datatypes.JSON

	InstalledAt time.Time `gorm:"index"`
}

// TableName 强制指定表名
func (InstallRecord) TableName() string {
	return "installs"
}

// Entry 调用方提交的安装事件
type Entry struct {
	Package   string
	Version   string
	Signature string
	Target    string
	Root      string
	Source    string
	Files     []string
}
