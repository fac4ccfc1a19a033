package domain

import "testing"

func TestHookDescriptor_Validate(t *testing.T) {
	cases := []struct {
		name    string
		d       HookDescriptor
		wantErr bool
	}{
		{"valid", HookDescriptor{Name: "connect", Library: "libc.so"}, false},
		{"missing name", HookDescriptor{Library: "libc.so"}, true},
		{"missing library", HookDescriptor{Name: "connect"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.d.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestHookState_String(t *testing.T) {
	want := map[HookState]string{
		HookUninstalled:  "uninstalled",
		HookInstalling:   "installing",
		HookInstalled:    "installed",
		HookUninstalling: "uninstalling",
		HookState(99):    "unknown",
	}
	for s, w := range want {
		if got := s.String(); got != w {
			t.Errorf("HookState(%d).String() = %q, want %q", s, got, w)
		}
	}
}
