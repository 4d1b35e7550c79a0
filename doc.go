/*Package titanic is a small batch framework for turning passenger CSV files
into labeled feature records for a survival classifier.

A Job pairs a Mapper with a Reducer. The Driver cuts every input file into
byte-range splits, packs them into bins, and runs one mapper per bin over the
lines of its splits; mapped key-value pairs are hash-partitioned into
intermediate bins that reducers group by key and write out as
"key\tvalue" lines.

The record package holds the line-to-labeled-point transformer itself, and
the pipeline package builds the featurize and summarize jobs on top of it.

Input and output may live on the local disk or in S3 ("s3://bucket/key").
*/
package titanic
