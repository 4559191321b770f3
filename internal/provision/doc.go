// Package provision turns the scheduler's unmet-demand signal into spawn
// requests.
//
// Unmet tasks are grouped so one new worker can serve several of them: the
// pool first tries one body covering every task, then shrinks the group size
// until bodies fit the part budget or a spawner accepts them. Each body gets
// one movement part per work capability. A spawner that lacks energy but
// could hold enough gets a refill task queued against it instead.
package provision
