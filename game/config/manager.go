package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/wargame/game/engine"
	"github.com/wricardo/wargame/game/service"
)

// CatalogFile is the name of the unit catalog inside the config directory.
// It is never listed as a scenario.
const CatalogFile = "units.json"

// DefaultScenarioName is loaded as the default scenario when present
const DefaultScenarioName = "skirmish"

var (
	ErrScenarioNotFound = service.ErrScenarioNotFound
	ErrInvalidScenario  = service.ErrInvalidScenario
	ErrInvalidCatalog   = errors.New("invalid unit catalog")
)

// catalogFile is the on-disk form of the unit catalog
type catalogFile struct {
	UnitTypes []engine.UnitType `json:"unit_types"`
}

// Manager handles scenario and unit catalog loading and caching
type Manager struct {
	configDir       string
	defaultScenario *engine.Scenario
	scenarios       map[string]*engine.Scenario
	catalog         *engine.StaticCatalog
	mu              sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		scenarios: make(map[string]*engine.Scenario),
	}

	catalog, err := m.loadCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load unit catalog: %w", err)
	}
	m.catalog = catalog

	m.loadDefaultScenario()
	return m, nil
}

// LoadScenario loads a scenario by name
func (m *Manager) LoadScenario(name string) (*engine.Scenario, error) {
	name = strings.TrimSuffix(name, ".json")
	if name == "" || name == strings.TrimSuffix(CatalogFile, ".json") || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrScenarioNotFound, name)
	}

	m.mu.RLock()
	// Check cache first
	if scenario, exists := m.scenarios[name]; exists {
		m.mu.RUnlock()
		return scenario, nil
	}
	m.mu.RUnlock()

	// Load from file
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if scenario, exists := m.scenarios[name]; exists {
		return scenario, nil
	}

	data, err := os.ReadFile(filepath.Join(m.configDir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrScenarioNotFound, name)
		}
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario engine.Scenario
	if err := json.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	if err := m.validate(&scenario); err != nil {
		return nil, err
	}

	// Cache the scenario
	m.scenarios[name] = &scenario
	return &scenario, nil
}

// ListScenarios returns information about all valid scenarios, sorted by id
func (m *Manager) ListScenarios() ([]*service.ScenarioInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var scenarios []*service.ScenarioInfo

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || entry.Name() == CatalogFile {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")

		// Try to load the scenario to get details
		scenario, err := m.LoadScenario(id)
		if err != nil {
			// Skip invalid scenarios
			continue
		}

		scenarios = append(scenarios, &service.ScenarioInfo{
			Filename:    entry.Name(),
			ScenarioID:  id,
			Name:        scenario.Name,
			Description: scenario.Description,
			Width:       scenario.Width,
			Height:      scenario.Height,
			Units:       len(scenario.Units),
		})
	}

	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ScenarioID < scenarios[j].ScenarioID })
	return scenarios, nil
}

// GetDefault returns the default scenario
func (m *Manager) GetDefault() *engine.Scenario {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultScenario
}

// SetDefault sets the default scenario by name
func (m *Manager) SetDefault(name string) error {
	scenario, err := m.LoadScenario(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultScenario = scenario
	return nil
}

// Catalog returns the unit catalog
func (m *Manager) Catalog() *engine.StaticCatalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog
}

// RefreshCache drops cached scenarios and reloads the catalog and default from disk
func (m *Manager) RefreshCache() error {
	catalog, err := m.loadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load unit catalog: %w", err)
	}

	m.mu.Lock()
	m.scenarios = make(map[string]*engine.Scenario)
	m.catalog = catalog
	m.mu.Unlock()

	m.loadDefaultScenario()
	return nil
}

// SaveScenario validates a scenario and writes it to disk
func (m *Manager) SaveScenario(name string, scenario *engine.Scenario) error {
	name = strings.TrimSuffix(name, ".json")
	if name == "" || name+".json" == CatalogFile || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid scenario id %q", ErrInvalidScenario, name)
	}
	if err := m.validate(scenario); err != nil {
		return err
	}

	// Marshal scenario to JSON with indentation
	data, err := json.MarshalIndent(scenario, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.configDir, name+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write scenario file: %w", err)
	}

	// Update cache
	m.mu.Lock()
	m.scenarios[name] = scenario
	m.mu.Unlock()

	return nil
}

// validate checks the scenario shape and that every placement names a known unit type
func (m *Manager) validate(scenario *engine.Scenario) error {
	if err := engine.ValidateScenario(scenario); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	catalog := m.catalog
	if catalog == nil {
		catalog = engine.DefaultCatalog()
	}
	if _, err := engine.OpeningEvents(scenario, catalog); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	return nil
}

// loadDefaultScenario picks skirmish.json, then the first valid scenario, then the
// built-in skirmish map
func (m *Manager) loadDefaultScenario() {
	scenario, err := m.LoadScenario(DefaultScenarioName)
	if err != nil {
		scenarios, listErr := m.ListScenarios()
		if listErr != nil || len(scenarios) == 0 {
			scenario = engine.DefaultScenario()
		} else if scenario, err = m.LoadScenario(scenarios[0].ScenarioID); err != nil {
			scenario = engine.DefaultScenario()
		}
	}

	m.mu.Lock()
	m.defaultScenario = scenario
	m.mu.Unlock()
}

// loadCatalog reads units.json, falling back to the built-in catalog when it is absent
func (m *Manager) loadCatalog() (*engine.StaticCatalog, error) {
	data, err := os.ReadFile(filepath.Join(m.configDir, CatalogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return engine.DefaultCatalog(), nil
		}
		return nil, err
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := ValidateCatalog(file.UnitTypes); err != nil {
		return nil, err
	}
	return engine.NewStaticCatalog(file.UnitTypes...), nil
}

// ValidateCatalog checks unit types for unique ids and names and sane budgets
func ValidateCatalog(types []engine.UnitType) error {
	if len(types) == 0 {
		return fmt.Errorf("%w: no unit types", ErrInvalidCatalog)
	}
	ids := make(map[engine.UnitTypeID]bool, len(types))
	names := make(map[string]bool, len(types))
	for _, t := range types {
		if t.Name == "" {
			return fmt.Errorf("%w: unit type %d has no name", ErrInvalidCatalog, t.ID)
		}
		if ids[t.ID] {
			return fmt.Errorf("%w: duplicate unit type id %d", ErrInvalidCatalog, t.ID)
		}
		if names[t.Name] {
			return fmt.Errorf("%w: duplicate unit type name %q", ErrInvalidCatalog, t.Name)
		}
		ids[t.ID] = true
		names[t.Name] = true

		if t.MovePoints < 0 || t.AttackPoints < 0 || t.ReactiveAttackPoints < 0 {
			return fmt.Errorf("%w: unit type %q has negative budgets", ErrInvalidCatalog, t.Name)
		}
		if t.Count <= 0 {
			return fmt.Errorf("%w: unit type %q must have a positive count", ErrInvalidCatalog, t.Name)
		}
	}
	return nil
}
