package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRunsThunkAndSignalsDone(t *testing.T) {
	ran := false
	tk := New(func() error {
		ran = true
		return nil
	})

	select {
	case <-tk.Done():
		t.Fatal("task reported done before Execute")
	default:
	}

	err := tk.Execute()
	require.NoError(t, err)
	assert.True(t, ran)

	select {
	case <-tk.Done():
	default:
		t.Fatal("task did not signal done after Execute")
	}
}

func TestExecuteWaitsForFrontTasks(t *testing.T) {
	var order []string

	front := New(func() error {
		time.Sleep(10 * time.Millisecond)
		order = append(order, "front")
		return nil
	})
	dependent := New(func() error {
		order = append(order, "dependent")
		return nil
	}, WithFrontTasks(front))

	go func() { _ = front.Execute() }()
	err := dependent.Execute()

	require.NoError(t, err)
	assert.Equal(t, []string{"front", "dependent"}, order)
}

func TestExecuteSignalsDoneEvenOnError(t *testing.T) {
	wantErr := errors.New("boom")
	tk := New(func() error { return wantErr }, WithMessage("failing task"))

	err := tk.Execute()
	assert.Equal(t, wantErr, err)
	assert.Equal(t, "failing task", tk.Message())

	select {
	case <-tk.Done():
	case <-time.After(50 * time.Millisecond):
		t.Fatal("task did not signal done after a failing thunk")
	}

	gotErr, ran := tk.Err()
	assert.True(t, ran)
	assert.Equal(t, wantErr, gotErr)
}
