package models

// Account is one set of credentials for the check-in service.
type Account struct {
	Name          string `json:"name" mapstructure:"name"`
	Email         string `json:"email" mapstructure:"email"`
	Passwd        string `json:"passwd" mapstructure:"passwd"`
	PushPlusToken string `json:"pushplusToken,omitempty" mapstructure:"pushplusToken"`
}

// HasPushPlus reports whether the account wants its own notification.
func (a Account) HasPushPlus() bool {
	return a.PushPlusToken != ""
}

// AuthenticatedAccount is an Account plus the session cookie obtained at login.
type AuthenticatedAccount struct {
	Account
	Cookie string
}
