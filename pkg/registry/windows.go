//go:build windows

package registry

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"golang.org/x/sys/windows/registry"
)

const (
	extensionsKeyPath = `Software\Google\Chrome\Extensions`
	// 32-bit Chrome builds read machine-wide entries from the WOW64 view.
	wow64ExtensionsKeyPath = `Software\Wow6432Node\Google\Chrome\Extensions`
	forcelistKeyPath       = `Software\Policies\Google\Chrome\ExtensionInstallForcelist`
	allowlistKeyPath       = `Software\Policies\Google\Chrome\ExtensionInstallAllowlist`
)

// Windows is a Store over the Windows registry. Extension entries live under
// HKCU (or HKLM when machine-wide) and policy lists under HKLM, which
// requires an elevated process to write. Machine-wide extension writes and
// deletes are mirrored into the Wow6432Node view.
type Windows struct {
	extensionsRoot registry.Key
	mirrors        []string
}

var _ Store = (*Windows)(nil)

// NewWindows returns a Store over the live registry.
func NewWindows(machine bool) (Store, error) {
	root := registry.CURRENT_USER
	if machine {
		root = registry.LOCAL_MACHINE
	}
	return &Windows{extensionsRoot: root, mirrors: extensionMirrors(machine)}, nil
}

// extensionMirrors lists the extra key paths that receive copies of
// extension entries.
func extensionMirrors(machine bool) []string {
	if !machine {
		return nil
	}
	return []string{wow64ExtensionsKeyPath}
}

func (w *Windows) location(root Root) (registry.Key, string, error) {
	switch root {
	case Extensions:
		return w.extensionsRoot, extensionsKeyPath, nil
	case Forcelist:
		return registry.LOCAL_MACHINE, forcelistKeyPath, nil
	case Allowlist:
		return registry.LOCAL_MACHINE, allowlistKeyPath, nil
	}
	return 0, "", fmt.Errorf("%w: %d", ErrUnknownRoot, int(root))
}

func (w *Windows) open(root Root, access uint32) (registry.Key, error) {
	base, path, err := w.location(root)
	if err != nil {
		return 0, err
	}
	return registry.OpenKey(base, path, access|registry.WOW64_64KEY)
}

func (w *Windows) create(root Root) (registry.Key, error) {
	base, path, err := w.location(root)
	if err != nil {
		return 0, err
	}
	k, _, err := registry.CreateKey(base, path, registry.ALL_ACCESS|registry.WOW64_64KEY)
	return k, err
}

// ListChildren implements Store.
func (w *Windows) ListChildren(root Root) ([]string, error) {
	k, err := w.open(root, registry.READ)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", root, err)
	}
	defer k.Close()

	var keys []string
	if root.Ordinal() {
		keys, err = k.ReadValueNames(-1)
	} else {
		keys, err = k.ReadSubKeyNames(-1)
	}
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}
	sortKeys(root, keys)
	return keys, nil
}

// ReadField implements Store.
func (w *Windows) ReadField(root Root, key, field string) (string, bool, error) {
	k, err := w.open(root, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("opening %s: %w", root, err)
	}
	defer k.Close()

	name := field
	if !root.Ordinal() {
		sub, err := registry.OpenKey(k, key, registry.QUERY_VALUE|registry.WOW64_64KEY)
		if err != nil {
			if errors.Is(err, registry.ErrNotExist) {
				return "", false, nil
			}
			return "", false, fmt.Errorf("opening %s\\%s: %w", root, key, err)
		}
		defer sub.Close()
		k = sub
	} else {
		name = key
	}

	value, _, err := k.GetStringValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s\\%s: %w", root, key, err)
	}
	return value, true, nil
}

// WriteField implements Store.
func (w *Windows) WriteField(root Root, key, field, value string) error {
	k, err := w.create(root)
	if err != nil {
		return fmt.Errorf("creating %s: %w", root, err)
	}
	defer k.Close()

	if root.Ordinal() {
		return k.SetStringValue(key, value)
	}

	sub, _, err := registry.CreateKey(k, key, registry.ALL_ACCESS|registry.WOW64_64KEY)
	if err != nil {
		return fmt.Errorf("creating %s\\%s: %w", root, key, err)
	}
	defer sub.Close()
	if err := sub.SetStringValue(field, value); err != nil {
		return err
	}

	for _, path := range w.mirrors {
		if err := writeMirror(w.extensionsRoot, path, key, field, value); err != nil {
			pterm.Debug.Printf("Could not mirror %s to %s: %v\n", key, path, err)
		}
	}
	return nil
}

func writeMirror(base registry.Key, path, key, field, value string) error {
	k, _, err := registry.CreateKey(base, path+`\`+key, registry.ALL_ACCESS|registry.WOW64_64KEY)
	if err != nil {
		return err
	}
	defer k.Close()
	return k.SetStringValue(field, value)
}

// DeleteKey implements Store.
func (w *Windows) DeleteKey(root Root, key string) error {
	k, err := w.open(root, registry.ALL_ACCESS)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return fmt.Errorf("%w: %s\\%s", ErrKeyNotFound, root, key)
		}
		return fmt.Errorf("opening %s: %w", root, err)
	}
	defer k.Close()

	if root.Ordinal() {
		err = k.DeleteValue(key)
	} else {
		err = registry.DeleteKey(k, key)
	}
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return fmt.Errorf("%w: %s\\%s", ErrKeyNotFound, root, key)
		}
		return fmt.Errorf("deleting %s\\%s: %w", root, key, err)
	}

	if root == Extensions {
		for _, path := range w.mirrors {
			if err := deleteMirror(w.extensionsRoot, path, key); err != nil {
				pterm.Debug.Printf("Could not remove mirrored %s from %s: %v\n", key, path, err)
			}
		}
	}
	return nil
}

func deleteMirror(base registry.Key, path, key string) error {
	k, err := registry.OpenKey(base, path, registry.ALL_ACCESS|registry.WOW64_64KEY)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return err
	}
	defer k.Close()
	if err := registry.DeleteKey(k, key); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return err
	}
	return nil
}

// AppendOrdinal implements Store.
func (w *Windows) AppendOrdinal(root Root, value string) (int, error) {
	if !root.Ordinal() {
		return 0, fmt.Errorf("%w: %s", ErrNotOrdinal, root)
	}
	k, err := w.create(root)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", root, err)
	}
	defer k.Close()

	names, err := k.ReadValueNames(-1)
	if err != nil {
		return 0, fmt.Errorf("enumerating %s: %w", root, err)
	}
	ordinal := len(names) + 1
	if err := k.SetStringValue(strconv.Itoa(ordinal), value); err != nil {
		return 0, fmt.Errorf("writing %s\\%d: %w", root, ordinal, err)
	}
	return ordinal, nil
}
