// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package invocation

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/juju/errors"
)

const (
	// ErrContextDestroyed is returned when a destroyed context is used to
	// start a new call.
	ErrContextDestroyed = errors.ConstError("invocation context destroyed")

	// ErrInvalidAttribute is returned when an attribute key is blank or too
	// long to be accepted.
	ErrInvalidAttribute = errors.ConstError("invalid attribute")
)

// Result codes recorded on a context once the call has completed.
const (
	ResultSuccess = "00"
	ResultFailed  = "01"
	ResultTimeout = "03"
	ResultMocked  = "04"
)

// RootInvokeID is the invoke id of the first call in a chain.
const RootInvokeID = "0"

// Limits bounds the size of attribute keys and values.
type Limits struct {
	MaxKeySize   int
	MaxValueSize int
}

// DefaultLimits are the attribute limits used when none are supplied. A key
// and value together stay within 64 bytes.
var DefaultLimits = Limits{
	MaxKeySize:   16,
	MaxValueSize: 48,
}

// Option configures a context when it is created.
type Option func(*Context)

// WithLimits overrides the attribute size limits.
func WithLimits(limits Limits) Option {
	return func(c *Context) {
		c.limits = limits
	}
}

// WithClusterTest marks the call chain as cluster test traffic.
func WithClusterTest(clusterTest bool) Option {
	return func(c *Context) {
		c.clusterTest = clusterTest
	}
}

// WithDebug marks the call chain as a debug chain, which is always sampled.
func WithDebug(debug bool) Option {
	return func(c *Context) {
		c.debug = debug
	}
}

// WithAppName sets the application name recorded on the context.
func WithAppName(name string) Option {
	return func(c *Context) {
		c.appName = name
	}
}

// WithUserDataSwitch supplies the toggle consulted before importing
// propagated user data. Without it, import is always enabled.
func WithUserDataSwitch(enabled func() bool) Option {
	return func(c *Context) {
		c.userDataEnabled = enabled
	}
}

// WithStartTime sets the start time of the call.
func WithStartTime(t time.Time) Option {
	return func(c *Context) {
		c.startTime = t
	}
}

// Context holds the state of one call in a call chain. It is owned by a
// single goroutine for the duration of the call and must be carried
// explicitly (see Capture) when the chain crosses goroutines.
type Context struct {
	traceID  string
	invokeID string
	appName  string

	serviceName    string
	methodName     string
	middlewareName string
	remoteIP       string
	port           string

	startTime    time.Time
	resultCode   string
	requestSize  int64
	responseSize int64
	hasError     bool

	clusterTest bool
	debug       bool

	request  any
	response any

	attributes      Attributes
	localAttributes Attributes

	limits          Limits
	userDataEnabled func() bool

	children  int
	destroyed bool
}

// New returns the root context of a call chain identified by traceID.
func New(traceID string, opts ...Option) *Context {
	c := &Context{
		traceID:    traceID,
		invokeID:   RootInvokeID,
		resultCode: ResultSuccess,
		limits:     DefaultLimits,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewChild returns the context for a call made from within this one. The
// child shares the trace id and inherits the cluster test flag and the
// propagating attributes. Local attributes never leave their context.
func (c *Context) NewChild() (*Context, error) {
	if c.destroyed {
		return nil, errors.Trace(ErrContextDestroyed)
	}
	c.children++
	child := &Context{
		traceID:         c.traceID,
		invokeID:        c.invokeID + "." + strconv.Itoa(c.children),
		appName:         c.appName,
		resultCode:      ResultSuccess,
		clusterTest:     c.clusterTest,
		debug:           c.debug,
		attributes:      c.attributes.Clone(),
		limits:          c.limits,
		userDataEnabled: c.userDataEnabled,
	}
	return child, nil
}

// TraceID returns the id of the call chain.
func (c *Context) TraceID() string {
	return c.traceID
}

// InvokeID returns the hierarchical id of this call within the chain.
func (c *Context) InvokeID() string {
	return c.invokeID
}

// Depth returns how deep in the chain this call is; the root is 0.
func (c *Context) Depth() int {
	return strings.Count(c.invokeID, ".")
}

// AppName returns the application name.
func (c *Context) AppName() string {
	return c.appName
}

// IsClusterTest reports whether the call chain is cluster test traffic.
func (c *Context) IsClusterTest() bool {
	return c.clusterTest && !c.destroyed
}

// SetClusterTest is the explicit way of changing the cluster test flag in
// the middle of a chain.
func (c *Context) SetClusterTest(clusterTest bool) {
	c.clusterTest = clusterTest
}

// IsDebug reports whether the chain is a debug chain.
func (c *Context) IsDebug() bool {
	return c.debug
}

// SetDebug changes the debug flag.
func (c *Context) SetDebug(debug bool) {
	c.debug = debug
}

// SetService records what is being called.
func (c *Context) SetService(middleware, service, method string) {
	c.middlewareName = middleware
	c.serviceName = service
	c.methodName = method
}

// MiddlewareName returns the middleware being called.
func (c *Context) MiddlewareName() string {
	return c.middlewareName
}

// ServiceName returns the service being called.
func (c *Context) ServiceName() string {
	return c.serviceName
}

// MethodName returns the method being called.
func (c *Context) MethodName() string {
	return c.methodName
}

// SetRemote records the remote peer of the call.
func (c *Context) SetRemote(ip, port string) {
	c.remoteIP = ip
	c.port = port
}

// RemoteIP returns the remote peer address.
func (c *Context) RemoteIP() string {
	return c.remoteIP
}

// Port returns the remote peer port.
func (c *Context) Port() string {
	return c.port
}

// StartTime returns when the call started.
func (c *Context) StartTime() time.Time {
	return c.startTime
}

// SetStartTime records when the call started.
func (c *Context) SetStartTime(t time.Time) {
	c.startTime = t
}

// ResultCode returns the result code of the call.
func (c *Context) ResultCode() string {
	return c.resultCode
}

// SetResultCode records the result code of the call.
func (c *Context) SetResultCode(code string) {
	c.resultCode = code
}

// HasError reports whether the call failed.
func (c *Context) HasError() bool {
	return c.hasError
}

// SetHasError records whether the call failed.
func (c *Context) SetHasError(hasError bool) {
	c.hasError = hasError
}

// SetSizes records the request and response payload sizes.
func (c *Context) SetSizes(request, response int64) {
	c.requestSize = request
	c.responseSize = response
}

// Sizes returns the request and response payload sizes.
func (c *Context) Sizes() (request int64, response int64) {
	return c.requestSize, c.responseSize
}

// Request returns the request recorded for the call.
func (c *Context) Request() any {
	return c.request
}

// SetRequest records the request of the call.
func (c *Context) SetRequest(request any) {
	c.request = request
}

// Response returns the response recorded for the call.
func (c *Context) Response() any {
	return c.response
}

// SetResponse records the response of the call.
func (c *Context) SetResponse(response any) {
	c.response = response
}

// PutUserData sets a propagating attribute. Values longer than the
// configured maximum are truncated.
func (c *Context) PutUserData(key, value string) (string, error) {
	value, err := c.checkAttribute(key, value)
	if err != nil {
		return "", errors.Trace(err)
	}
	old, _ := c.attributes.Put(key, value)
	return old, nil
}

// UserData returns the propagating attribute for key.
func (c *Context) UserData(key string) (string, bool) {
	return c.attributes.Get(key)
}

// RemoveUserData deletes the propagating attribute for key.
func (c *Context) RemoveUserData(key string) (string, bool) {
	return c.attributes.Remove(key)
}

// UserDataMap returns a copy of the propagating attributes.
func (c *Context) UserDataMap() map[string]string {
	return c.attributes.Map()
}

// UserDataKeys returns the keys of the propagating attributes in insertion
// order.
func (c *Context) UserDataKeys() []string {
	return c.attributes.Keys()
}

// PutLocalAttribute sets an attribute that never leaves this context.
func (c *Context) PutLocalAttribute(key, value string) (string, error) {
	value, err := c.checkAttribute(key, value)
	if err != nil {
		return "", errors.Trace(err)
	}
	old, _ := c.localAttributes.Put(key, value)
	return old, nil
}

// LocalAttribute returns the local attribute for key.
func (c *Context) LocalAttribute(key string) (string, bool) {
	return c.localAttributes.Get(key)
}

// RemoveLocalAttribute deletes the local attribute for key.
func (c *Context) RemoveLocalAttribute(key string) (string, bool) {
	return c.localAttributes.Remove(key)
}

// LocalAttributeMap returns a copy of the local attributes.
func (c *Context) LocalAttributeMap() map[string]string {
	return c.localAttributes.Map()
}

func (c *Context) checkAttribute(key, value string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.Annotatef(ErrInvalidAttribute, "blank key")
	}
	if c.limits.MaxKeySize > 0 && len(key) > c.limits.MaxKeySize {
		return "", errors.Annotatef(ErrInvalidAttribute, "key %q longer than %d", key, c.limits.MaxKeySize)
	}
	if c.limits.MaxValueSize > 0 && len(value) > c.limits.MaxValueSize {
		value = truncate(value, c.limits.MaxValueSize)
	}
	return value, nil
}

// truncate cuts value to at most n bytes without splitting a rune.
func truncate(value string, n int) string {
	for n > 0 && !utf8.RuneStart(value[n]) {
		n--
	}
	return value[:n]
}

// Destroy releases everything the context references. A destroyed context
// cannot start new calls and no longer counts as cluster test traffic.
func (c *Context) Destroy() {
	c.attributes.Clear()
	c.localAttributes.Clear()
	c.request = nil
	c.response = nil
	c.clusterTest = false
	c.debug = false
	c.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (c *Context) Destroyed() bool {
	return c.destroyed
}
