package validation

import (
	"fmt"
	"strings"
	"sync"
)

// Rules bounds what message content the service accepts. MaxContentBytes
// of zero means unlimited.
type Rules struct {
	MaxContentBytes int
}

var (
	rulesMu sync.RWMutex
	rules   Rules
)

// SetRules installs the active content rules. Called once at startup from
// the effective config.
func SetRules(r Rules) {
	rulesMu.Lock()
	rules = r
	rulesMu.Unlock()
}

// ValidateContent rejects content that is empty after trimming whitespace
// or that exceeds the configured size cap.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content must not be blank")
	}
	rulesMu.RLock()
	max := rules.MaxContentBytes
	rulesMu.RUnlock()
	if max > 0 && len(content) > max {
		return fmt.Errorf("content exceeds %d bytes", max)
	}
	return nil
}

// ValidateEmoji rejects empty reaction markers. Anything non-blank is
// accepted so clients can use arbitrary emoji or short codes.
func ValidateEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return fmt.Errorf("emoji must not be blank")
	}
	return nil
}

// ValidateName rejects blank display names on profile sync.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name must not be blank")
	}
	return nil
}
