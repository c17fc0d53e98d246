// Package testutil provides test doubles shared by the voxmeter packages.
//
// It contains three groups of helpers:
//
//   - MemoryStore: an in-memory repository.Store with the same idempotent
//     usage insert semantics as the SQL store.
//   - Mock providers: testify mocks for the Transcriber, Translator and
//     LanguageDetector capabilities.
//   - Database helpers: SetupTestSQLite opens a migrated SQLite store in a
//     temporary directory.
//
// # Usage
//
//	store := testutil.NewMemoryStore()
//	store.SeedPricing(testutil.GlobalPricing(model.ServiceTranscription, "OpenAI", 0, 0.006))
//
//	tr := testutil.NewMockTranscriber("OpenAI")
//	tr.On("Transcribe", mock.Anything, mock.Anything).
//		Return(testutil.Transcript("hello", 60), nil)
package testutil
