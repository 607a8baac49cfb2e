package domain

// InstalledPack records one provisioned format pack. The provisioner writes
// one record into each pack document's frontmatter and the full list into
// the lock document; the format loader reads them back.
type InstalledPack struct {
	Name        string `yaml:"name" json:"name" mapstructure:"name"`
	Version     string `yaml:"version" json:"version" mapstructure:"version"`
	Digest      string `yaml:"digest" json:"digest" mapstructure:"digest"`
	InstalledAt string `yaml:"installed_at" json:"installed_at" mapstructure:"installed_at"`
}
