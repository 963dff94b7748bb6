package mqtt

import "fmt"

// Topic layout:
//
//	wagateway/sessions/{tenant}/state   retained lifecycle transitions
//	wagateway/system/status             gateway online/offline status
const (
	topicPrefix       = "wagateway"
	systemStatusTopic = topicPrefix + "/system/status"
)

// SessionStateTopic returns the retained state topic for a tenant.
func SessionStateTopic(tenantID string) string {
	return fmt.Sprintf("%s/sessions/%s/state", topicPrefix, tenantID)
}
