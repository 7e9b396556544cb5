package file

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"colazione/internal/infra/persistence/state"
	"colazione/pkg/domain"
)

// documentNames maps each record set to its JSON document.
var documentNames = map[domain.RecordSet]string{
	domain.SetUsers:    "users.json",
	domain.SetGroups:   "groups.json",
	domain.SetMenu:     "menu.json",
	domain.SetOrders:   "orders.json",
	domain.SetPayments: "payments.json",
}

// DocumentName returns the file name the set is stored under.
func DocumentName(set domain.RecordSet) string { return documentNames[set] }

type userDoc struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Group    string `json:"group"`
	Role     string `json:"role,omitempty"`
}

type orderDoc struct {
	Username string              `json:"username"`
	Group    string              `json:"group"`
	Order    domain.OrderPayload `json:"order"`
}

// readDocument decodes the document of set into snap. A missing or empty
// document leaves the empty default in place.
func readDocument(path string, set domain.RecordSet, snap *domain.Snapshot) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := DecodeDocument(data, set, snap); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// DecodeDocument parses one set document into snap.
func DecodeDocument(data []byte, set domain.RecordSet, snap *domain.Snapshot) error {
	switch set {
	case domain.SetUsers:
		var docs []userDoc
		if err := json.Unmarshal(data, &docs); err != nil {
			return err
		}
		users := make([]domain.User, 0, len(docs))
		for _, d := range docs {
			users = append(users, domain.User{
				Username: d.Username,
				Password: d.Password,
				Group:    d.Group,
				Role:     domain.SanitizeRole(d.Role),
			})
		}
		snap.Users = users
	case domain.SetGroups:
		var groups []string
		if err := json.Unmarshal(data, &groups); err != nil {
			return err
		}
		snap.Groups = groups
	case domain.SetMenu:
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if _, ok := raw.(map[string]any); !ok {
			return fmt.Errorf("menu document is not an object")
		}
		snap.Menu = domain.NormalizeMenu(raw)
	case domain.SetOrders:
		var days map[string][]orderDoc
		if err := json.Unmarshal(data, &days); err != nil {
			return err
		}
		book := make(domain.OrderBook, len(days))
		for date, docs := range days {
			day := make([]domain.Order, 0, len(docs))
			for _, d := range docs {
				day = append(day, domain.Order{Date: date, Username: d.Username, Group: d.Group, Payload: d.Order})
			}
			book[date] = day
		}
		snap.Orders = book
	case domain.SetPayments:
		var ledger domain.PaymentLedger
		if err := json.Unmarshal(data, &ledger); err != nil {
			return err
		}
		snap.Payments = ledger
	}
	return nil
}

// EncodeDocument renders the set of snap as an indented JSON document.
func EncodeDocument(set domain.RecordSet, snap domain.Snapshot) ([]byte, error) {
	snap = state.Fill(snap)
	var doc any
	switch set {
	case domain.SetUsers:
		docs := make([]userDoc, 0, len(snap.Users))
		for _, u := range snap.Users {
			docs = append(docs, userDoc{Username: u.Username, Password: u.Password, Group: u.Group, Role: string(u.Role)})
		}
		doc = docs
	case domain.SetGroups:
		doc = snap.Groups
	case domain.SetMenu:
		doc = snap.Menu
	case domain.SetOrders:
		days := make(map[string][]orderDoc, len(snap.Orders))
		for date, orders := range snap.Orders {
			docs := make([]orderDoc, 0, len(orders))
			for _, o := range orders {
				docs = append(docs, orderDoc{Username: o.Username, Group: o.Group, Order: o.Payload})
			}
			days[date] = docs
		}
		doc = days
	case domain.SetPayments:
		doc = snap.Payments
	default:
		return nil, fmt.Errorf("unknown record set %q", set)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// stageDocument writes data next to path and returns the temp file name.
func stageDocument(path string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+strings.TrimSuffix(filepath.Base(path), ".json")+"-*.tmp")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}
