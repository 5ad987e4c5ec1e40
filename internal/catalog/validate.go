package catalog

import "fmt"

// Validate checks an Endpoint (and its kind-specific spec) against the
// invariants in SPEC_FULL.md §3. It never touches the filesystem or the
// target database — only the descriptor's internal consistency.
func Validate(e *Endpoint) error {
	if !nameRE.MatchString(e.Name) {
		return fmt.Errorf("endpoint name %q does not match %s", e.Name, nameRE.String())
	}
	if e.Namespace != "" {
		if !nameRE.MatchString(e.Namespace) {
			return fmt.Errorf("namespace %q does not match %s", e.Namespace, nameRE.String())
		}
		if ReservedNamespaces[e.Namespace] {
			return fmt.Errorf("namespace %q is reserved", e.Namespace)
		}
	}

	switch e.Kind {
	case KindSQL:
		return validateSQL(e.SQL)
	case KindProxy:
		return validateProxy(e.Proxy)
	case KindComposite:
		return validateComposite(e.Composite)
	case KindWebhook:
		return validateWebhook(e.Webhook)
	case KindStatic, KindFiles:
		return nil
	default:
		return fmt.Errorf("unknown endpoint kind %q", e.Kind)
	}
}

func validateSQL(s *SQLSpec) error {
	if s == nil {
		return fmt.Errorf("SQL endpoint missing kind-specific descriptor")
	}
	if s.ObjectName == "" {
		return fmt.Errorf("SQL endpoint missing objectName")
	}
	if s.Schema == "" {
		s.Schema = "dbo"
	}
	if s.PrimaryKey == "" {
		s.PrimaryKey = "Id"
	}
	allowed := make(map[string]bool, len(s.AllowedColumns))
	for _, a := range s.AllowedColumns {
		allowed[a] = true
	}
	if s.AliasToDatabase == nil {
		s.AliasToDatabase = map[string]string{}
	}
	if s.DatabaseToAlias == nil {
		s.DatabaseToAlias = map[string]string{}
	}
	for alias, dbcol := range s.AliasToDatabase {
		if !allowed[alias] {
			return fmt.Errorf("alias %q in aliasToDatabase is not in allowedColumns", alias)
		}
		if existing, ok := s.DatabaseToAlias[dbcol]; ok && existing != alias {
			return fmt.Errorf("databaseToAlias[%q] = %q does not invert aliasToDatabase[%q] = %q", dbcol, existing, alias, dbcol)
		}
		s.DatabaseToAlias[dbcol] = alias
	}
	for dbcol, alias := range s.DatabaseToAlias {
		if got := s.AliasToDatabase[alias]; got != dbcol {
			return fmt.Errorf("aliasToDatabase[%q] = %q does not invert databaseToAlias[%q] = %q", alias, got, dbcol, alias)
		}
	}
	return nil
}

func validateProxy(p *ProxySpec) error {
	if p == nil {
		return fmt.Errorf("Proxy endpoint missing kind-specific descriptor")
	}
	if p.UpstreamURL == "" {
		return fmt.Errorf("Proxy endpoint missing upstreamUrl")
	}
	if p.Type == "" {
		p.Type = "standard"
	}
	return nil
}

func validateComposite(c *CompositeSpec) error {
	if c == nil {
		return fmt.Errorf("Composite endpoint missing kind-specific descriptor")
	}
	seen := make(map[string]int, len(c.Steps))
	for i, step := range c.Steps {
		if step.Name == "" {
			return fmt.Errorf("composite step %d missing name", i)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("composite step name %q is duplicated", step.Name)
		}
		seen[step.Name] = i
		if step.IsArray && step.ArrayProperty == "" {
			return fmt.Errorf("composite step %q: isArray requires arrayProperty", step.Name)
		}
	}
	for i, step := range c.Steps {
		for _, dep := range step.DependsOn {
			pos, ok := seen[dep]
			if !ok {
				return fmt.Errorf("composite step %q depends on unknown step %q", step.Name, dep)
			}
			if pos >= i {
				return fmt.Errorf("composite step %q depends on %q, which is not an earlier step", step.Name, dep)
			}
		}
	}
	return nil
}

func validateWebhook(w *WebhookSpec) error {
	if w == nil {
		return fmt.Errorf("Webhook endpoint missing kind-specific descriptor")
	}
	if w.TargetTable == "" {
		return fmt.Errorf("Webhook endpoint missing targetTable")
	}
	return nil
}
