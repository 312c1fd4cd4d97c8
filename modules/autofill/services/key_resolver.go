package services

import (
	"strings"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

// KeyResolver is an alias index from every key an extractor may emit to the
// field config it belongs to. The first registration of a key wins; target
// keys are registered in a pass before any derived alias, so an alias can never
// shadow another config's target key.
type KeyResolver struct {
	byKey map[string]types.ExtractionFieldConfig
	order []string
}

func NewKeyResolver(configs []types.ExtractionFieldConfig) KeyResolver {
	r := KeyResolver{byKey: make(map[string]types.ExtractionFieldConfig, len(configs)*3)}

	for _, cfg := range configs {
		r.register(cfg.TargetKey, cfg)
	}
	for _, cfg := range configs {
		for _, alias := range aliasesFor(cfg) {
			r.register(alias, cfg)
		}
	}
	return r
}

func aliasesFor(cfg types.ExtractionFieldConfig) []string {
	out := make([]string, 0, 4)
	fieldKey := strings.TrimSpace(cfg.FieldKey)
	if fieldKey != "" {
		out = append(out, fieldKey, fieldmeta.NamespacedKey(fieldKey))
	}
	if snap := cfg.OriginalRemoteSnapshot; snap != nil {
		snapKey := strings.TrimSpace(snap.FieldKey)
		if snapKey != "" && snapKey != fieldKey {
			out = append(out, snapKey, fieldmeta.NamespacedKey(snapKey))
		}
	}
	return out
}

func (r *KeyResolver) register(key string, cfg types.ExtractionFieldConfig) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if _, ok := r.byKey[key]; ok {
		return
	}
	r.byKey[key] = cfg
	r.order = append(r.order, key)
}

func (r KeyResolver) Resolve(key string) (types.ExtractionFieldConfig, bool) {
	cfg, ok := r.byKey[key]
	return cfg, ok
}

// Keys lists registered keys in registration order.
func (r KeyResolver) Keys() []string {
	return append([]string(nil), r.order...)
}
