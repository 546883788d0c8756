package database

import "folio/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Page{},
		&models.PageView{},
		&models.WaitlistEntry{},
	}
}
