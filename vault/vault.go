package vault

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// Vault holds the kv mount carrying the settlement operator credentials.
type Vault struct {
	OperatorPath string
	*api.Client
}

func New(token, unsealKey, address, operatorPath string) (*Vault, error) {
	config := &api.Config{
		Address: address,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("new: error initializing vault: %w", err)
	}

	client.SetToken(token)

	s := client.Sys()
	status, err := s.SealStatus()
	if err != nil {
		return nil, fmt.Errorf("new: error getting seal status: %w", err)
	}

	if !status.Sealed {
		unsealResponse, err := s.Unseal(unsealKey)
		if err != nil {
			return nil, fmt.Errorf("new: error getting unseal response: %w", err)
		}
		if unsealResponse.Sealed {
			return nil, fmt.Errorf("new: vault unseal unsuccesfull")
		}
	}

	err = createIfNotExists(client, operatorPath)
	if err != nil {
		return nil, fmt.Errorf("new: unable to mount operator path: %w", err)
	}

	return &Vault{OperatorPath: operatorPath, Client: client}, nil
}

// OperatorCredentials reads the settlement operator address and signing
// passphrase from the operator mount.
func (v *Vault) OperatorCredentials() (address, passphrase string, err error) {
	secret, err := v.Logical().Read(fmt.Sprintf("%s/operator", v.OperatorPath))
	if err != nil {
		return "", "", fmt.Errorf("operatorCredentials: unable to read from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", "", fmt.Errorf("operatorCredentials: no operator credentials at %s", v.OperatorPath)
	}

	address, _ = secret.Data["account_address"].(string)
	passphrase, _ = secret.Data["security_passphrase"].(string)
	if address == "" || passphrase == "" {
		return "", "", fmt.Errorf("operatorCredentials: incomplete operator credentials at %s", v.OperatorPath)
	}
	return address, passphrase, nil
}

func createIfNotExists(client *api.Client, path string) error {
	mounts, err := client.Sys().ListMounts()
	if err != nil {
		return fmt.Errorf("createIfNotExists: unable to list mounts: %w", err)
	}

	if _, ok := mounts[path+"/"]; !ok {
		err = client.Sys().Mount(path, &api.MountInput{Type: "kv"})
		if err != nil {
			return fmt.Errorf("createIfNotExists: unable to create path: %w", err)
		}
	}

	return nil
}
