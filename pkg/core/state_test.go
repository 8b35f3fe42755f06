package core

import "testing"

func TestStateCloneIsolation(t *testing.T) {
	st := NewState()
	st.Text = "block"
	st.Values["k"] = "v"
	st.Data["raw"] = 1

	clone := st.Clone()
	clone.Values["k"] = "changed"
	clone.Data["raw"] = 2
	clone.Text = "other"

	if st.Values["k"] != "v" {
		t.Errorf("clone write leaked into original values: %v", st.Values["k"])
	}
	if st.Data["raw"] != 1 {
		t.Errorf("clone write leaked into original data: %v", st.Data["raw"])
	}
	if st.Text != "block" {
		t.Errorf("clone write leaked into original text: %q", st.Text)
	}
}

func TestStateCloneNil(t *testing.T) {
	var st *State
	clone := st.Clone()
	if clone == nil || clone.Values == nil || clone.Data == nil {
		t.Fatal("nil state should clone to an empty usable state")
	}
}

func TestStateStringValue(t *testing.T) {
	st := NewState()
	st.Values["name"] = "ada"
	st.Values["count"] = 3

	if got := st.StringValue("name"); got != "ada" {
		t.Errorf("StringValue(name) = %q, want ada", got)
	}
	if got := st.StringValue("count"); got != "" {
		t.Errorf("StringValue(count) = %q, want empty for non-string", got)
	}
	if got := st.StringValue("missing"); got != "" {
		t.Errorf("StringValue(missing) = %q, want empty", got)
	}
}

func TestCharacterClone(t *testing.T) {
	c := Character{
		Name:     "daimon",
		Bio:      []string{"line"},
		Settings: map[string]string{"a": "1"},
	}
	clone := c.Clone()
	clone.Bio[0] = "mutated"
	clone.Settings["a"] = "2"

	if c.Bio[0] != "line" {
		t.Errorf("bio aliased: %q", c.Bio[0])
	}
	if c.Settings["a"] != "1" {
		t.Errorf("settings aliased: %q", c.Settings["a"])
	}
}

func TestCharacterValidate(t *testing.T) {
	if err := (Character{}).Validate(); err == nil {
		t.Error("empty character should not validate")
	}
	if err := (Character{Name: "  "}).Validate(); err == nil {
		t.Error("blank name should not validate")
	}
	if err := (Character{Name: "ok"}).Validate(); err != nil {
		t.Errorf("valid character rejected: %v", err)
	}
}
