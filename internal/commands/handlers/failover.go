// In file: internal/commands/handlers/failover.go
package handlers

import (
	"fmt"
	"strings"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// FailoverHandler is one unified handler dispatching all seven
// route-management command names, grounded on failover_command_handler.py's
// single FailoverCommandHandler + command_map dispatch over distinct
// domain command classes. Kind selects which of the seven behaviors a
// given registered instance implements; Name() derives from Kind so the
// same struct type backs every command-map entry just as the original's
// one handler class serves every registered name.
type FailoverHandler struct {
	Kind string // create-failover-route, delete-failover-route, list-failover-routes, route-append, route-prepend, route-clear, route-list
}

func (h *FailoverHandler) Name() string { return h.Kind }

func (h *FailoverHandler) Description() string {
	switch h.Kind {
	case "create-failover-route":
		return "Create a named failover route with a rotation policy."
	case "delete-failover-route":
		return "Delete a named failover route."
	case "list-failover-routes":
		return "List all failover routes."
	case "route-append":
		return "Append a backend:model element to a route."
	case "route-prepend":
		return "Prepend a backend:model element to a route."
	case "route-clear":
		return "Remove all elements from a route."
	case "route-list":
		return "List the elements of a route."
	}
	return ""
}

func (h *FailoverHandler) Format() string {
	switch h.Kind {
	case "create-failover-route":
		return "!/create-failover-route(name=<name>, policy=k|m|km|mk)"
	case "delete-failover-route", "list-failover-routes":
		return "!/" + h.Kind + "(name=<name>)"
	case "route-append", "route-prepend":
		return "!/" + h.Kind + "(name=<name>, element=backend:model)"
	default:
		return "!/" + h.Kind + "(name=<name>)"
	}
}

func (h *FailoverHandler) Examples() []string {
	return []string{strings.Replace(h.Format(), "?", "", -1)}
}

func (h *FailoverHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	switch h.Kind {
	case "create-failover-route":
		return h.create(cmd, sess)
	case "delete-failover-route":
		return h.delete(cmd, sess)
	case "list-failover-routes":
		return h.listAll(sess)
	case "route-append":
		return h.mutateElements(cmd, sess, true)
	case "route-prepend":
		return h.mutateElements(cmd, sess, false)
	case "route-clear":
		return h.clear(cmd, sess)
	case "route-list":
		return h.listOne(cmd, sess)
	}
	return commands.Result{Success: false, Message: "unknown failover command"}
}

func (h *FailoverHandler) create(cmd commands.Command, sess *session.Session) commands.Result {
	name := cmd.StringArg("name")
	policy := session.FailoverPolicy(cmd.StringArg("policy"))
	if name == "" {
		return commands.Result{Success: false, Message: "create-failover-route requires a name"}
	}
	switch policy {
	case session.PolicyKeyFirst, session.PolicyModelFirst, session.PolicyKM, session.PolicyMK:
	default:
		return commands.Result{Success: false, Message: "policy must be one of: k, m, km, mk"}
	}
	route := session.FailoverRoute{Name: name, Policy: policy}
	newState := sess.State.WithFailoverRoute(route)
	return commands.Result{Success: true, Message: fmt.Sprintf("Failover route %q created with policy %s", name, policy), NewState: &newState}
}

func (h *FailoverHandler) delete(cmd commands.Command, sess *session.Session) commands.Result {
	name := cmd.StringArg("name")
	if _, ok := sess.State.BackendConfig.FailoverRoutes[name]; !ok {
		return commands.Result{Success: false, Message: fmt.Sprintf("No such failover route: %s", name)}
	}
	newState := sess.State.WithoutFailoverRoute(name)
	return commands.Result{Success: true, Message: fmt.Sprintf("Failover route %q deleted", name), NewState: &newState}
}

func (h *FailoverHandler) listAll(sess *session.Session) commands.Result {
	routes := sess.State.BackendConfig.FailoverRoutes
	if len(routes) == 0 {
		return commands.Result{Success: true, Message: "No failover routes configured."}
	}
	var lines []string
	for _, r := range routes {
		lines = append(lines, fmt.Sprintf("%s (%s): %s", r.Name, r.Policy, strings.Join(r.Elements, " -> ")))
	}
	return commands.Result{Success: true, Message: strings.Join(lines, "\n")}
}

func (h *FailoverHandler) mutateElements(cmd commands.Command, sess *session.Session, append_ bool) commands.Result {
	name := cmd.StringArg("name")
	element := cmd.StringArg("element")
	route, ok := sess.State.BackendConfig.FailoverRoutes[name]
	if !ok {
		return commands.Result{Success: false, Message: fmt.Sprintf("No such failover route: %s", name)}
	}
	if element == "" {
		return commands.Result{Success: false, Message: "element is required (backend:model)"}
	}
	if append_ {
		route.Elements = append(append([]string{}, route.Elements...), element)
	} else {
		route.Elements = append([]string{element}, route.Elements...)
	}
	newState := sess.State.WithFailoverRoute(route)
	return commands.Result{Success: true, Message: fmt.Sprintf("Route %q now: %s", name, strings.Join(route.Elements, " -> ")), NewState: &newState}
}

func (h *FailoverHandler) clear(cmd commands.Command, sess *session.Session) commands.Result {
	name := cmd.StringArg("name")
	route, ok := sess.State.BackendConfig.FailoverRoutes[name]
	if !ok {
		return commands.Result{Success: false, Message: fmt.Sprintf("No such failover route: %s", name)}
	}
	route.Elements = nil
	newState := sess.State.WithFailoverRoute(route)
	return commands.Result{Success: true, Message: fmt.Sprintf("Route %q cleared", name), NewState: &newState}
}

func (h *FailoverHandler) listOne(cmd commands.Command, sess *session.Session) commands.Result {
	name := cmd.StringArg("name")
	route, ok := sess.State.BackendConfig.FailoverRoutes[name]
	if !ok {
		return commands.Result{Success: false, Message: fmt.Sprintf("No such failover route: %s", name)}
	}
	return commands.Result{Success: true, Message: strings.Join(route.Elements, " -> ")}
}
