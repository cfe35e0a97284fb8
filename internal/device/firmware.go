package device

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed firmwares/firmwares.yaml
var firmwaresYAML []byte

// Firmware describes where the agent hooks into one bootloader build.
type Firmware struct {
	// Name is the catalog key, e.g. "vision_0.85.0015"
	Name string `yaml:"name"`

	// Device is the board codename
	Device string `yaml:"device"`

	// Version is the bootloader version string
	Version string `yaml:"version"`

	// Verified indicates the offsets have been tested on hardware
	Verified bool `yaml:"verified"`

	Offsets FirmwareOffsets `yaml:"offsets"`

	Notes string `yaml:"notes,omitempty"`
}

// FirmwareOffsets holds the upload-time addresses. Zero means unknown.
type FirmwareOffsets struct {
	FastbootOEMHook uint32 `yaml:"fb_oem_hook"`
	KeytestHook     uint32 `yaml:"hb_keytest_hook"`
	Preloader       uint32 `yaml:"preloader"`
	Payload         uint32 `yaml:"payload"`
}

// Complete reports whether every offset is known.
func (o FirmwareOffsets) Complete() bool {
	return o.FastbootOEMHook != 0 && o.KeytestHook != 0 && o.Preloader != 0 && o.Payload != 0
}

// FirmwareCatalog holds all known bootloader builds.
type FirmwareCatalog struct {
	Firmwares []*Firmware `yaml:"firmwares"`

	index map[string]*Firmware
}

var (
	catalog     *FirmwareCatalog
	catalogOnce sync.Once
	catalogErr  error
)

// LoadFirmwares parses the embedded catalog once and returns it.
func LoadFirmwares() (*FirmwareCatalog, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = ParseFirmwares(firmwaresYAML)
	})
	return catalog, catalogErr
}

// ParseFirmwares parses a catalog document.
func ParseFirmwares(data []byte) (*FirmwareCatalog, error) {
	var c FirmwareCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse firmware catalog: %w", err)
	}

	c.index = make(map[string]*Firmware, len(c.Firmwares))
	for _, fw := range c.Firmwares {
		if fw.Name == "" {
			return nil, fmt.Errorf("firmware catalog entry without a name")
		}
		if _, dup := c.index[fw.Name]; dup {
			return nil, fmt.Errorf("duplicate firmware %q in catalog", fw.Name)
		}
		c.index[fw.Name] = fw
	}
	return &c, nil
}

// Get looks a firmware up by name.
func (c *FirmwareCatalog) Get(name string) (*Firmware, bool) {
	fw, ok := c.index[name]
	return fw, ok
}

// Names returns the sorted catalog keys.
func (c *FirmwareCatalog) Names() []string {
	names := make([]string, 0, len(c.index))
	for name := range c.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Firmware) String() string {
	verified := ""
	if f.Verified {
		verified = " (verified)"
	}
	return fmt.Sprintf("%s - %s %s%s", f.Name, f.Device, f.Version, verified)
}

// FormatOffsets renders the offsets one per line.
func (f *Firmware) FormatOffsets() string {
	return fmt.Sprintf(`  fb_oem_hook:     0x%08x
  hb_keytest_hook: 0x%08x
  preloader:       0x%08x
  payload:         0x%08x`,
		f.Offsets.FastbootOEMHook,
		f.Offsets.KeytestHook,
		f.Offsets.Preloader,
		f.Offsets.Payload,
	)
}
