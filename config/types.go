package config

// ValidatorConfig describes one committee member as listed in the
// genesis file: its BLS public key and the network addresses peers dial
// to reach it.
type ValidatorConfig struct {
	PubKey        string `yaml:"pubkey"`
	PrivKeyPath   string `yaml:"privkey_path"`
	ListenAddr    string `yaml:"listen_addr"`
	Libp2pAddr    string `yaml:"libp2p_addr"`
	BootstrapAddr string `yaml:"bootstrap_addr"`

	// Libp2pKeyPath points at a hex-encoded Ed25519 key file giving this
	// validator a persistent host identity (PeerID) across restarts. Left
	// empty, the node falls back to a fresh ephemeral identity every boot.
	Libp2pKeyPath string `yaml:"libp2p_key_path"`
}

// GenesisConfig is the fixed committee and shared secret every validator
// boots from (spec.md §6's OCKHAM_GENESIS file).
type GenesisConfig struct {
	SharedSecret string            `yaml:"shared_secret"`
	Validators   []ValidatorConfig `yaml:"validators"`
}

// ConfigFile is the top-level structure of the genesis YAML.
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}
