package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// InstancePrefix prefixes every remote instance name.
const InstancePrefix = "tenant-"

// ErrInvalidTenantID is returned for tenant IDs that cannot name an instance.
var ErrInvalidTenantID = errors.New("invalid tenant id")

var tenantIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateTenantID checks that id can be embedded in a remote instance name.
func ValidateTenantID(id string) error {
	if !tenantIDRegexp.MatchString(id) {
		return fmt.Errorf("%w %q: must match ^[A-Za-z0-9_-]{1,64}$", ErrInvalidTenantID, id)
	}
	return nil
}

// InstanceName derives the remote instance name for a tenant.
func InstanceName(tenantID string) string {
	return InstancePrefix + tenantID
}

// TenantFromInstance is the inverse of InstanceName.
func TenantFromInstance(instance string) (string, bool) {
	id, ok := strings.CutPrefix(instance, InstancePrefix)
	if !ok || ValidateTenantID(id) != nil {
		return "", false
	}
	return id, true
}
