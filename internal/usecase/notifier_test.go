package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/llvm-gh/internal/domain"
	"github.com/naka-gawa/llvm-gh/internal/mailer"
	"github.com/naka-gawa/llvm-gh/internal/routing"
)

type mockPullRequestFetcher struct {
	mock.Mock
}

func (m *mockPullRequestFetcher) ListChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	args := m.Called(ctx, owner, repo, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockPullRequestFetcher) FetchPatch(ctx context.Context, owner, repo string, number int) (string, error) {
	args := m.Called(ctx, owner, repo, number)
	return args.String(0), args.Error(1)
}

func (m *mockPullRequestFetcher) FetchDisplayName(ctx context.Context, login string) (string, error) {
	args := m.Called(ctx, login)
	return args.String(0), args.Error(1)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg mailer.Message) error {
	return m.Called(ctx, msg).Error(0)
}

const testPatch = `From 0123456789abcdef Mon Sep 17 00:00:00 2001
From: Jane Doe <jane@example.com>
Subject: [PATCH] [clang] Fix crash

---
diff --git a/clang/lib/Sema/Sema.cpp b/clang/lib/Sema/Sema.cpp
+From: not an author
`

func testEvent(action, base string) domain.PullRequestEvent {
	return domain.PullRequestEvent{
		Action:  action,
		Sender:  "jdoe",
		Owner:   "llvm",
		Repo:    "llvm-project",
		Number:  42,
		Title:   "Fix crash",
		BaseRef: base,
		HTMLURL: "https://github.com/llvm/llvm-project/pull/42",
	}
}

func sentTo(sender *mockSender) []string {
	var to []string
	for _, call := range sender.Calls {
		to = append(to, call.Arguments.Get(1).(mailer.Message).To)
	}
	return to
}

func TestNotifier_Notify(t *testing.T) {
	testCases := []struct {
		name             string
		event            domain.PullRequestEvent
		files            []string
		opts             NotifierOptions
		sendErr          error
		expectedTo       []string
		expectedSubjects []string
		expectedProjects []string
		expectedOK       bool
	}{
		{
			name:             "one message per mailing list",
			event:            testEvent(domain.ActionSynchronize, "main"),
			files:            []string{"clang/lib/Sema/Sema.cpp", "clang-tools-extra/clangd/AST.cpp", "llvm/lib/IR/Value.cpp", ".github/CODEOWNERS", "lld/ELF/Driver.cpp"},
			expectedTo:       []string{routing.CFECommitsAddress, routing.LLVMCommitsAddress},
			expectedSubjects: []string{"[clang,clang-tools-extra] Fix crash (PR #42)", "[lld,llvm] Fix crash (PR #42)"},
			expectedProjects: []string{"clang", "clang-tools-extra", "lld", "llvm"},
			expectedOK:       true,
		},
		{
			name:             "release branch goes to branch commits once",
			event:            testEvent(domain.ActionOpened, "release/18.x"),
			files:            []string{"clang/lib/Sema/Sema.cpp", "mlir/lib/IR/Builders.cpp", "openmp/runtime/src/kmp.h"},
			expectedTo:       []string{routing.LLVMBranchCommitsAddress},
			expectedSubjects: []string{"[clang,mlir,openmp] Fix crash (PR #42)"},
			expectedProjects: []string{"clang", "mlir", "openmp"},
			expectedOK:       true,
		},
		{
			name:             "override redirects every message",
			event:            testEvent(domain.ActionSynchronize, "main"),
			files:            []string{"mlir/lib/IR/Builders.cpp", "flang/lib/Parser/parsing.cpp"},
			opts:             NotifierOptions{Override: "tester@example.org"},
			expectedTo:       []string{"tester@example.org", "tester@example.org"},
			expectedSubjects: []string{"[flang] Fix crash (PR #42)", "[mlir] Fix crash (PR #42)"},
			expectedProjects: []string{"flang", "mlir"},
			expectedOK:       true,
		},
		{
			name:             "send failure is reported, not returned",
			event:            testEvent(domain.ActionSynchronize, "main"),
			files:            []string{"lldb/source/Core/Debugger.cpp"},
			sendErr:          errors.New("connection refused"),
			expectedTo:       []string{routing.LLDBCommitsAddress},
			expectedSubjects: []string{"[lldb] Fix crash (PR #42)"},
			expectedProjects: []string{"lldb"},
			expectedOK:       false,
		},
		{
			name:             "no changed files sends nothing",
			event:            testEvent(domain.ActionSynchronize, "main"),
			files:            []string{},
			expectedProjects: nil,
			expectedOK:       false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := new(mockPullRequestFetcher)
			fetcher.On("ListChangedFiles", mock.Anything, "llvm", "llvm-project", 42).Return(tc.files, nil)
			fetcher.On("FetchPatch", mock.Anything, "llvm", "llvm-project", 42).Return(testPatch, nil)
			fetcher.On("FetchDisplayName", mock.Anything, "jdoe").Return("Jane Doe", nil)
			sender := new(mockSender)
			sender.On("Send", mock.Anything, mock.Anything).Return(tc.sendErr)

			notifier := NewNotifier(fetcher, sender, routing.DefaultTable(), tc.opts, discardLogger())
			result, err := notifier.Notify(context.Background(), tc.event)
			require.NoError(t, err)

			assert.Equal(t, tc.expectedProjects, result.Projects)
			assert.Equal(t, tc.expectedTo, sentTo(sender))
			var subjects []string
			for _, call := range sender.Calls {
				msg := call.Arguments.Get(1).(mailer.Message)
				subjects = append(subjects, msg.Subject)
				assert.Equal(t, "Jane Doe", msg.FromName)
				assert.Equal(t, []string{"Jane Doe <jane@example.com>"}, msg.ReplyTo)
			}
			assert.Equal(t, tc.expectedSubjects, subjects)
			assert.Equal(t, tc.expectedOK, result.OK())
		})
	}
}

func TestNotifier_DuplicateAddressesSendOnce(t *testing.T) {
	fetcher := new(mockPullRequestFetcher)
	// lld and llvm share llvm-commits, as do polly, zorg and compiler-rt.
	fetcher.On("ListChangedFiles", mock.Anything, "llvm", "llvm-project", 42).
		Return([]string{"lld/a", "llvm/b", "polly/c", "zorg/d", "compiler-rt/e", "debuginfo-tests/f"}, nil)
	fetcher.On("FetchPatch", mock.Anything, "llvm", "llvm-project", 42).Return(testPatch, nil)
	fetcher.On("FetchDisplayName", mock.Anything, "jdoe").Return("Jane Doe", nil)
	sender := new(mockSender)
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	notifier := NewNotifier(fetcher, sender, routing.DefaultTable(), NotifierOptions{}, discardLogger())
	result, err := notifier.Notify(context.Background(), testEvent(domain.ActionSynchronize, "main"))
	require.NoError(t, err)

	sender.AssertNumberOfCalls(t, "Send", 1)
	assert.Equal(t, []string{routing.LLVMCommitsAddress}, result.Sent)
}

func TestNotifier_IgnoredAction(t *testing.T) {
	fetcher := new(mockPullRequestFetcher)
	sender := new(mockSender)
	notifier := NewNotifier(fetcher, sender, routing.DefaultTable(), NotifierOptions{}, discardLogger())

	result, err := notifier.Notify(context.Background(), testEvent("labeled", "main"))
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.True(t, result.OK())
	fetcher.AssertNotCalled(t, "ListChangedFiles", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNotifier_DryRun(t *testing.T) {
	fetcher := new(mockPullRequestFetcher)
	fetcher.On("ListChangedFiles", mock.Anything, "llvm", "llvm-project", 42).Return([]string{"libcxx/include/vector"}, nil)
	fetcher.On("FetchPatch", mock.Anything, "llvm", "llvm-project", 42).Return(testPatch, nil)
	fetcher.On("FetchDisplayName", mock.Anything, "jdoe").Return("Jane Doe", nil)
	sender := new(mockSender)
	logger, hook := test.NewNullLogger()

	notifier := NewNotifier(fetcher, sender, routing.DefaultTable(), NotifierOptions{DryRun: true}, logger)
	result, err := notifier.Notify(context.Background(), testEvent(domain.ActionSynchronize, "main"))
	require.NoError(t, err)

	assert.True(t, result.OK())
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Dry run, not sending", hook.LastEntry().Message)
	assert.Equal(t, routing.LibcxxCommitsAddress, hook.LastEntry().Data["mail_to"])
}

func TestNotifier_SendFailureIsLogged(t *testing.T) {
	fetcher := new(mockPullRequestFetcher)
	fetcher.On("ListChangedFiles", mock.Anything, "llvm", "llvm-project", 42).Return([]string{"libc/src/string/strlen.cpp"}, nil)
	fetcher.On("FetchPatch", mock.Anything, "llvm", "llvm-project", 42).Return(testPatch, nil)
	fetcher.On("FetchDisplayName", mock.Anything, "jdoe").Return("Jane Doe", nil)
	sender := new(mockSender)
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("535 authentication failed"))
	logger, hook := test.NewNullLogger()

	notifier := NewNotifier(fetcher, sender, routing.DefaultTable(), NotifierOptions{}, logger)
	result, err := notifier.Notify(context.Background(), testEvent(domain.ActionSynchronize, "main"))
	require.NoError(t, err)

	assert.Equal(t, []string{routing.LibcCommitsAddress}, result.Failed)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "535 authentication failed")
}

func TestNotifier_FetchErrorIsReturned(t *testing.T) {
	fetcher := new(mockPullRequestFetcher)
	fetcher.On("ListChangedFiles", mock.Anything, "llvm", "llvm-project", 42).Return(nil, errors.New("not found"))
	notifier := NewNotifier(fetcher, new(mockSender), routing.DefaultTable(), NotifierOptions{}, discardLogger())

	_, err := notifier.Notify(context.Background(), testEvent(domain.ActionSynchronize, "main"))
	assert.EqualError(t, err, "not found")
}

func TestEmailBody(t *testing.T) {
	body := EmailBody(testEvent(domain.ActionSynchronize, "main"), "PATCH")
	assert.Equal(t, "\n<a href='https://github.com/jdoe'>jdoe</a> updated <a href='https://github.com/llvm/llvm-project/pull/42'>PR#42</a>:\n\nPATCH\n", body)

	assert.Contains(t, EmailBody(testEvent(domain.ActionOpened, "main"), ""), "jdoe</a> opened <a href=")
}

func TestPatchAuthors(t *testing.T) {
	patch := testPatch + "From 1111 Mon Sep 17 00:00:00 2001\nFrom: John Roe <john@example.com>\n"
	assert.Equal(t, []string{"Jane Doe <jane@example.com>", "John Roe <john@example.com>"}, PatchAuthors(patch))
	assert.Nil(t, PatchAuthors("no authors here"))
}
