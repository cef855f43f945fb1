// Package binding describes the markup capabilities the driver consumes:
// reading declarative attributes off a triggering element, and replacing the
// content of a target region. The dom package provides the implementation
// backed by a parsed HTML tree; tests may supply their own.
package binding

// Field is one successful form control.
type Field struct {
	Name  string
	Value string
}

// Attribute is a name/value pair applied to inserted markup.
type Attribute struct {
	Name  string
	Value string
}

// Element is a node that can trigger a request.
type Element interface {
	// Tag returns the lower-case tag name.
	Tag() string
	// Attr returns the attribute value and whether it is present.
	Attr(name string) (string, bool)
	// Dataset returns every data-* attribute keyed by its camel-cased
	// suffix, the way a browser exposes element.dataset.
	Dataset() map[string]string
	// FormFields returns the successful controls of a form element, or the
	// element itself when it is a named control. Other elements return nil.
	FormFields() []Field
	// Disabled reports a disabled attribute or a "disabled" class.
	Disabled() bool
	// Find returns the descendants matching selector.
	Find(selector string) []Element
	// SetHidden toggles the element's visibility.
	SetHidden(hidden bool)
}

// Fragment is detached markup that can be re-attached to a region.
type Fragment interface {
	HTML() string
}

// Region is a target whose content is replaced wholesale. The selector is
// re-evaluated on every call, so a Region stays valid across renders.
type Region interface {
	Selector() string
	Exists() bool
	HTML() string
	SetHTML(markup string) error
	// PrependHTML inserts markup before the current content, applying attrs
	// to every top-level element of the inserted markup.
	PrependHTML(markup string, attrs ...Attribute) error
	// Detach removes and returns the current content.
	Detach() Fragment
	// Attach replaces the current content with a previously detached one.
	Attach(f Fragment)
	SetAttr(name, value string)
	RemoveAttr(name string)
	Find(selector string) []Element
}

// Context is the bound application scope.
type Context interface {
	// Region resolves selector against the whole document.
	Region(selector string) Region
	// Find returns the elements inside the bound scope matching selector.
	Find(selector string) []Element
}
