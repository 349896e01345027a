package registry

// Defaults returns the three servers the host ships with. They point at the
// built-in backends, so a fresh install works without any external process.
func Defaults() []ServerDescriptor {
	return []ServerDescriptor{
		{
			ID:          "core",
			Name:        "Core Services",
			Description: "Health checks, runtime metrics and service configuration",
			Category:    CategoryCore,
			Endpoint:    "inproc://core",
			Enabled:     true,
			Port:        8000,
			Tools:       []string{"get_health", "get_metrics", "get_config"},
		},
		{
			ID:          "database",
			Name:        "Database Services",
			Description: "Query, insert and inspect records",
			Category:    CategoryDatabase,
			Endpoint:    "inproc://database",
			Enabled:     true,
			Port:        8001,
			Tools:       []string{"query_database", "insert_record", "get_database_schema"},
		},
		{
			ID:          "files",
			Name:        "File Services",
			Description: "File operations",
			Category:    CategoryFiles,
			Endpoint:    "inproc://files",
			Enabled:     false,
			Port:        8002,
			Tools:       []string{"example_tool"},
		},
	}
}
