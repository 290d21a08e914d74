package rules

import (
	"strconv"
	"strings"

	"fintrack/internal/model"
)

// Changes is the field-level difference a set of actions would make to a
// transaction. Fields already holding the action's value are left out, which
// is what makes repeated application a no-op.
type Changes struct {
	CategoryID   *int64
	Tags         model.Tags // full resulting tag list, set only when a tag was added
	AddedTags    []string
	Verified     *bool
	Description  *string
	MerchantName *string
}

func (c Changes) Empty() bool {
	return c.CategoryID == nil && c.Tags == nil && c.Verified == nil &&
		c.Description == nil && c.MerchantName == nil
}

// Plan computes the changes actions would make to tx. Later actions on the same
// field override earlier ones, except tags which accumulate.
func Plan(tx model.Transaction, actions []model.Action) Changes {
	var ch Changes
	tags := tx.Tags
	for _, a := range actions {
		switch a.Field {
		case model.ActionCategoryID:
			id, err := strconv.ParseInt(strings.TrimSpace(a.Value), 10, 64)
			if err != nil {
				continue
			}
			if tx.CategoryID != nil && *tx.CategoryID == id {
				ch.CategoryID = nil
				continue
			}
			ch.CategoryID = &id
		case model.ActionTags:
			name := strings.TrimSpace(a.Value)
			if tags.Has(name) {
				continue
			}
			tags = tags.With(name)
			ch.Tags = tags
			ch.AddedTags = append(ch.AddedTags, name)
		case model.ActionVerified:
			v, err := strconv.ParseBool(a.Value)
			if err != nil {
				continue
			}
			if tx.Verified == v {
				ch.Verified = nil
				continue
			}
			ch.Verified = &v
		case model.ActionDescription:
			v := strings.TrimSpace(a.Value)
			if tx.Description == v {
				ch.Description = nil
				continue
			}
			ch.Description = &v
		case model.ActionMerchantName:
			v := strings.TrimSpace(a.Value)
			if tx.MerchantName == v {
				ch.MerchantName = nil
				continue
			}
			ch.MerchantName = &v
		}
	}
	return ch
}

// Updates renders c as a column -> value map for a field-level update.
func (c Changes) Updates() map[string]any {
	out := make(map[string]any, 5)
	if c.CategoryID != nil {
		out["category_id"] = *c.CategoryID
	}
	if c.Tags != nil {
		out["tags"] = c.Tags
	}
	if c.Verified != nil {
		out["verified"] = *c.Verified
	}
	if c.Description != nil {
		out["description"] = *c.Description
	}
	if c.MerchantName != nil {
		out["merchant_name"] = *c.MerchantName
	}
	return out
}

// Apply writes c onto tx in memory.
func (c Changes) Apply(tx *model.Transaction) {
	if c.CategoryID != nil {
		id := *c.CategoryID
		tx.CategoryID = &id
	}
	if c.Tags != nil {
		tx.Tags = append(model.Tags(nil), c.Tags...)
	}
	if c.Verified != nil {
		tx.Verified = *c.Verified
	}
	if c.Description != nil {
		tx.Description = *c.Description
	}
	if c.MerchantName != nil {
		tx.MerchantName = *c.MerchantName
	}
}
