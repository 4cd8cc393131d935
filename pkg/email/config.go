package email

// Config holds mail transport configuration.
// Postmark tokens are optional so development setups can fall back to the
// file sender; SenderEmail is always required because it is the From address.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SupportEmail         string `env:"SUPPORT_EMAIL"`
	OutputDir            string `env:"EMAIL_OUTPUT_DIR" envDefault:"./tmp/emails"` // used when Postmark is not configured
}

// UsePostmark reports whether enough credentials are present for Postmark delivery.
func (c Config) UsePostmark() bool {
	return c.PostmarkServerToken != ""
}
