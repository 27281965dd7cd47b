package settlement

// Account holds the operator credentials used to sign submissions. The
// passphrase comes from vault; end-user wallets never pass through here.
type Account struct {
	AccountAddress     string `json:"account_address"`
	PrivateKey         string `json:"private_key,omitempty"`
	SecurityPassphrase string `json:"security_passphrase,omitempty"`
}
