package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// kindDirs are the immediate children of the endpoints root, one per Kind.
var kindDirs = map[string]Kind{
	"SQL":       KindSQL,
	"Proxy":     KindProxy,
	"Composite": KindComposite,
	"Webhook":   KindWebhook,
	"Static":    KindStatic,
	"Files":     KindFiles,
}

// descriptor mirrors entity.json on disk. Every kind's fields live side by
// side here (reflection-driven property iteration is avoided per the design
// notes — we decode once into a superset struct and pick fields by Kind).
type descriptor struct {
	Namespace           string   `json:"Namespace"`
	DisplayName         string   `json:"DisplayName"`
	AllowedMethods      []string `json:"AllowedMethods"`
	AllowedEnvironments []string `json:"AllowedEnvironments"`
	IsPrivate           bool     `json:"IsPrivate"`

	// SQL
	Schema          string            `json:"Schema"`
	ObjectName      string            `json:"ObjectName"`
	PrimaryKey      string            `json:"PrimaryKey"`
	AllowedColumns  []string          `json:"AllowedColumns"`
	AliasToDatabase map[string]string `json:"AliasToDatabase"`
	ProcedureName   string            `json:"ProcedureName"`

	// Proxy
	UpstreamURL string `json:"UpstreamUrl"`
	Type        string `json:"Type"`

	// Composite
	UpstreamBase string               `json:"UpstreamBase"`
	Steps        []compositeStepJSON  `json:"Steps"`

	// Webhook
	TargetTable string `json:"TargetTable"`
}

type compositeStepJSON struct {
	Name                    string            `json:"Name"`
	TargetEndpoint          string            `json:"TargetEndpoint"`
	Method                  string            `json:"Method"`
	SourceProperty          string            `json:"SourceProperty"`
	IsArray                 bool              `json:"IsArray"`
	ArrayProperty           string            `json:"ArrayProperty"`
	DependsOn               []string          `json:"DependsOn"`
	TemplateTransformations map[string]string `json:"TemplateTransformations"`
}

// Load walks root (the endpoints directory) and produces a Snapshot. A
// single invalid descriptor is logged and skipped; a missing or unreadable
// root is a fatal (returned) error, per §4.1.
func Load(root string, logger log.Logger) (*Snapshot, error) {
	kindRoots, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read endpoints root %s: %w", root, err)
	}

	byKey := make(map[Key]*Endpoint)

	for _, kindEntry := range kindRoots {
		if !kindEntry.IsDir() {
			continue
		}
		kind, ok := kindDirs[kindEntry.Name()]
		if !ok {
			level.Warn(logger).Log("msg", "unrecognised endpoint kind directory, skipping", "dir", kindEntry.Name())
			continue
		}
		kindRoot := filepath.Join(root, kindEntry.Name())

		err := filepath.WalkDir(kindRoot, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || d.Name() != "entity.json" {
				return nil
			}
			ep, err := parseEntity(path, kindRoot, kind, logger)
			if err != nil {
				level.Error(logger).Log("msg", "skipping invalid endpoint descriptor", "path", path, "err", err)
				return nil
			}
			key := ep.Key()
			if existing, dup := byKey[key]; dup {
				level.Error(logger).Log("msg", "duplicate endpoint key, keeping first", "namespace", key.Namespace, "name", key.Name, "kept_path", existing.Name)
				return nil
			}
			byKey[key] = ep
			return nil
		})
		if err != nil {
			level.Error(logger).Log("msg", "error walking kind directory", "dir", kindRoot, "err", err)
		}
	}

	return &Snapshot{byKey: byKey}, nil
}

func parseEntity(entityPath, kindRoot string, kind Kind, logger log.Logger) (*Endpoint, error) {
	raw, err := os.ReadFile(entityPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entityPath, err)
	}
	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", entityPath, err)
	}

	name, inferredNS := inferNameAndNamespace(entityPath, kindRoot)
	namespace := inferredNS
	if d.Namespace != "" && d.Namespace != inferredNS {
		if inferredNS != "" {
			level.Warn(logger).Log("msg", "explicit Namespace overrides the directory-inferred namespace", "path", entityPath, "inferred", inferredNS, "explicit", d.Namespace)
		}
		namespace = d.Namespace // explicit wins
	}

	ep := &Endpoint{
		Kind:                kind,
		Name:                name,
		Namespace:           namespace,
		DisplayName:         d.DisplayName,
		AllowedMethods:      d.AllowedMethods,
		AllowedEnvironments: d.AllowedEnvironments,
		IsPrivate:           d.IsPrivate,
	}

	switch kind {
	case KindSQL:
		ep.SQL = &SQLSpec{
			Schema:          d.Schema,
			ObjectName:      d.ObjectName,
			PrimaryKey:      d.PrimaryKey,
			AllowedColumns:  d.AllowedColumns,
			AliasToDatabase: d.AliasToDatabase,
			ProcedureName:   d.ProcedureName,
		}
	case KindProxy:
		ep.Proxy = &ProxySpec{UpstreamURL: d.UpstreamURL, Type: d.Type}
	case KindComposite:
		steps := make([]CompositeStep, len(d.Steps))
		for i, s := range d.Steps {
			steps[i] = CompositeStep{
				Name:                    s.Name,
				TargetEndpoint:          s.TargetEndpoint,
				Method:                  s.Method,
				SourceProperty:          s.SourceProperty,
				IsArray:                 s.IsArray,
				ArrayProperty:           s.ArrayProperty,
				DependsOn:               s.DependsOn,
				TemplateTransformations: s.TemplateTransformations,
			}
		}
		ep.Composite = &CompositeSpec{UpstreamBase: d.UpstreamBase, Steps: steps}
	case KindWebhook:
		ep.Webhook = &WebhookSpec{TargetTable: d.TargetTable, AllowedColumns: d.AllowedColumns}
	}

	if err := Validate(ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// inferNameAndNamespace derives the endpoint name from the immediate parent
// of entity.json, and the namespace from the directory above that, when
// present and not the kind root itself (§4.1 step 1).
func inferNameAndNamespace(entityPath, kindRoot string) (name, namespace string) {
	endpointDir := filepath.Dir(entityPath)
	name = filepath.Base(endpointDir)

	parent := filepath.Dir(endpointDir)
	if parent != kindRoot && parent != "." {
		namespace = filepath.Base(parent)
	}
	return name, namespace
}
