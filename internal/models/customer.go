package models

type Customer struct {

	ID      uint   `gorm:"primaryKey"`
	Name    string `gorm:"not null"`
	Email   string `gorm:"index"`
	Phone   string
	OIDCID  string `gorm:"index"` // OpenID Connect identifier
	Address string
	City    string
	Zip     string
}
