/*
Package transfer moves documents between two MongoDB collections over two
independently configured connections.

This package includes the following main components:

  - Transfer: Coordinates one transfer end to end, tracking counts and
    emitting a single terminal report.

  - Stream: Lazily produces documents from the source collection in stable
    _id order, paginated to bound memory.

  - Writer: Writes fixed-size batches to the target collection with a
    configurable duplicate policy and transient-error retry.

  - ProgressReporter: Receives periodic progress events and the terminal
    report.
*/
package transfer
