package main

import (
	"fmt"
	"strings"

	"billdesk/backend/internal/session"
)

// parseItem reads "description[;unit[;kg]];price". Empty unit or kg parts are
// allowed, e.g. "Rope;;2;15".
func parseItem(raw string) (session.ItemEdit, error) {
	parts := strings.Split(raw, ";")
	if len(parts) < 2 || len(parts) > 4 {
		return session.ItemEdit{}, fmt.Errorf("item %q: want description[;unit[;kg]];price", raw)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" {
		return session.ItemEdit{}, fmt.Errorf("item %q: description is empty", raw)
	}

	edit := session.ItemEdit{
		Description: &parts[0],
		Price:       &parts[len(parts)-1],
	}
	if len(parts) >= 3 {
		edit.Unit = &parts[1]
	}
	if len(parts) == 4 {
		edit.Kg = &parts[2]
	}
	return edit, nil
}

func parseItems(raw []string) ([]session.ItemEdit, error) {
	out := make([]session.ItemEdit, 0, len(raw))
	for _, r := range raw {
		edit, err := parseItem(r)
		if err != nil {
			return nil, err
		}
		out = append(out, edit)
	}
	return out, nil
}

// replaceItems swaps the draft's items for edits. New items go in first so the
// draft never drops to zero items.
func replaceItems(ctrl *session.Controller, edits []session.ItemEdit) error {
	old := ctrl.Draft().Items
	for _, edit := range edits {
		id, err := ctrl.AddItem()
		if err != nil {
			return err
		}
		if err := ctrl.EditItem(id, edit); err != nil {
			return err
		}
	}
	for _, item := range old {
		if err := ctrl.RemoveItem(item.ID); err != nil {
			return err
		}
	}
	return nil
}
