package dns

type Provider struct {
	Resolver string           `yaml:"resolver"`
	Zones    []ProviderConfig `yaml:"zones"`
}

// ProviderConfig describes one zone that accepts RFC2136 updates.
type ProviderConfig struct {
	BaseDomain    string `yaml:"domain"`
	Nameserver    string `yaml:"nameserver"`
	TsigKeyName   string `yaml:"tsig_key_name"`
	TsigSecret    string `yaml:"tsig_secret"`
	TsigSecretAlg string `yaml:"tsig_secret_alg"`
	Net           string `yaml:"net"`
	TTL           uint32 `yaml:"ttl"`
}
