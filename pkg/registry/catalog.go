package registry

// Catalog provides in-memory lookups over the module/submodule tree. It is
// built once at startup from the seeded rows (or from BuiltInModules for
// tests) and never mutated afterwards.
type Catalog struct {
	modules         map[string]Module
	submodules      map[string]Submodule // keyed by submodule key
	moduleOfSubmod  map[string]string
	submodsOfModule map[string][]string
}

// NewCatalog builds a catalog from module and submodule lists.
func NewCatalog(modules []Module, submodules []Submodule) *Catalog {
	c := &Catalog{
		modules:         make(map[string]Module, len(modules)),
		submodules:      make(map[string]Submodule, len(submodules)),
		moduleOfSubmod:  make(map[string]string, len(submodules)),
		submodsOfModule: make(map[string][]string),
	}
	for _, m := range modules {
		c.modules[m.Key] = m
	}
	for _, s := range submodules {
		c.submodules[s.Key] = s
		c.moduleOfSubmod[s.Key] = s.ModuleKey
		c.submodsOfModule[s.ModuleKey] = append(c.submodsOfModule[s.ModuleKey], s.Key)
	}
	return c
}

// ParentModule returns the parent module key for a child bundle, or "" if
// the module is not a bundle.
func (c *Catalog) ParentModule(moduleKey string) string {
	m, ok := c.modules[moduleKey]
	if !ok {
		return ""
	}
	return m.ParentKey
}

// Module returns the module for a key.
func (c *Catalog) Module(key string) (Module, bool) {
	m, ok := c.modules[key]
	return m, ok
}

// Submodule returns the submodule for a key.
func (c *Catalog) Submodule(key string) (Submodule, bool) {
	s, ok := c.submodules[key]
	return s, ok
}

// OwningModule returns the module key that owns a submodule.
func (c *Catalog) OwningModule(submoduleKey string) (string, bool) {
	m, ok := c.moduleOfSubmod[submoduleKey]
	return m, ok
}

// SubmodulesOf returns the submodule keys owned by a module.
func (c *Catalog) SubmodulesOf(moduleKey string) []string {
	return c.submodsOfModule[moduleKey]
}

// ModuleKeys returns all known module keys.
func (c *Catalog) ModuleKeys() []string {
	keys := make([]string, 0, len(c.modules))
	for k := range c.modules {
		keys = append(keys, k)
	}
	return keys
}

// BuiltInModules returns the seed catalog of modules.
func BuiltInModules() []Module {
	return []Module{
		{Key: ModuleCRM, DisplayName: "CRM", Description: "Customer relationship management", IsActive: true},
		{Key: ModuleInventory, DisplayName: "Inventory", Description: "Stock and warehouse management", IsActive: true},
		{Key: ModuleFinance, DisplayName: "Finance", Description: "Accounting and financial reports", IsActive: true},
		{Key: ModuleVouchers, DisplayName: "Vouchers", Description: "Financial document workflow", ParentKey: ModuleFinance, IsActive: true},
		{Key: ModuleHR, DisplayName: "HR", Description: "Human resources", IsActive: true},
		{Key: ModuleServiceDesk, DisplayName: "Service Desk", Description: "Ticketing and service requests", IsActive: true},
		{Key: ModuleDashboard, DisplayName: "Dashboard", IsActive: true},
		{Key: ModuleSettings, DisplayName: "Settings", IsActive: true},
		{Key: ModuleAdmin, DisplayName: "Administration", IsActive: true},
		{Key: ModuleReports, DisplayName: "Reports", IsActive: true},
	}
}

// BuiltInSubmodules returns the seed catalog of submodules.
func BuiltInSubmodules() []Submodule {
	return []Submodule{
		{ModuleKey: ModuleCRM, Key: "leads", DisplayName: "Leads"},
		{ModuleKey: ModuleCRM, Key: "contacts", DisplayName: "Contacts"},
		{ModuleKey: ModuleCRM, Key: "deals", DisplayName: "Deals"},
		{ModuleKey: ModuleInventory, Key: "stock", DisplayName: "Stock"},
		{ModuleKey: ModuleInventory, Key: "warehouses", DisplayName: "Warehouses"},
		{ModuleKey: ModuleFinance, Key: "ledger", DisplayName: "General Ledger"},
		{ModuleKey: ModuleFinance, Key: "expenses", DisplayName: "Expenses"},
		{ModuleKey: ModuleVouchers, Key: "payment_vouchers", DisplayName: "Payment Vouchers"},
		{ModuleKey: ModuleVouchers, Key: "receipt_vouchers", DisplayName: "Receipt Vouchers"},
		{ModuleKey: ModuleHR, Key: "payroll", DisplayName: "Payroll"},
		{ModuleKey: ModuleHR, Key: "attendance", DisplayName: "Attendance"},
		{ModuleKey: ModuleServiceDesk, Key: "tickets", DisplayName: "Tickets"},
	}
}
