// Package testdb provides helpers for database integration tests.
//
// Tests run against the database named by TASKDISPATCH_TEST_DATABASE_URL and
// are skipped when it is unset. Each test body runs inside a transaction that
// is rolled back afterwards, so tests never see each other's rows:
//
//	func TestSomething(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        s := postgres.NewPostgresOccurrenceStore(tx, nil)
//	        ...
//	    })
//	}
package testdb
