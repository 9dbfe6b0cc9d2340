package pubsub

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// PrivateNamespace is the namespace that puts a node's names under the node's own name, like
// ros::NodeHandle("~").
const PrivateNamespace = "~"

// ValidateName checks that name is usable as a topic, service or node name.
func ValidateName(name string) error {
	if name == "" || name == "/" || name == PrivateNamespace {
		return errors.Errorf("invalid name %q", name)
	}
	for _, part := range strings.Split(strings.TrimPrefix(strings.TrimPrefix(name, "~"), "/"), "/") {
		if part == "" {
			return errors.Errorf("invalid name %q: empty segment", name)
		}
		for i, r := range part {
			isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
			isDigit := r >= '0' && r <= '9'
			if i == 0 && !isAlpha {
				return errors.Errorf("invalid name %q: segment %q must start with a letter", name, part)
			}
			if !isAlpha && !isDigit && r != '_' {
				return errors.Errorf("invalid name %q: illegal character %q", name, r)
			}
		}
	}
	return nil
}

// resolveNamespace turns the namespace a node was created with into an absolute one.
func resolveNamespace(nodeName, namespace string) string {
	switch {
	case namespace == PrivateNamespace:
		return "/" + nodeName
	case namespace == "":
		return "/"
	case strings.HasPrefix(namespace, "/"):
		return path.Clean(namespace)
	default:
		return path.Clean("/" + namespace)
	}
}

// resolveName applies ROS name resolution: absolute names are kept, "~" names go under the node's
// own name and relative names under the namespace.
func resolveName(nodeName, namespace, name string) string {
	switch {
	case strings.HasPrefix(name, "/"):
		return path.Clean(name)
	case strings.HasPrefix(name, "~"):
		return path.Join("/", nodeName, strings.TrimPrefix(strings.TrimPrefix(name, "~"), "/"))
	default:
		return path.Join(namespace, name)
	}
}
